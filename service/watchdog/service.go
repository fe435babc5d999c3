// Package watchdog fails running subtasks that outlive their liveness
// deadline. Without it a sub-agent that never reports would leave its
// subtask running forever and the coordinator would never be resumed.
package watchdog

import (
	"context"
	"log"
	"time"

	"github.com/autarch-dev/autarch/internal/clock"
	"github.com/autarch-dev/autarch/service/reconcile"
	"github.com/autarch-dev/autarch/service/subtask"
)

// Config represents watchdog service configuration
type Config struct {
	// PollingInterval is how often the watchdog scans for expired subtasks
	PollingInterval time.Duration
}

// DefaultConfig returns the default watchdog configuration
func DefaultConfig() Config {
	return Config{
		PollingInterval: 30 * time.Second,
	}
}

// Service scans running subtasks and fails expired ones.
type Service struct {
	config     Config
	store      subtask.Store
	reconciler *reconcile.Service
	shutdownCh chan struct{}
}

// New creates a watchdog service.
func New(store subtask.Store, reconciler *reconcile.Service, config Config) *Service {
	if config.PollingInterval <= 0 {
		config.PollingInterval = DefaultConfig().PollingInterval
	}
	return &Service{
		config:     config,
		store:      store,
		reconciler: reconciler,
		shutdownCh: make(chan struct{}),
	}
}

// Start begins the expiry scan loop. It blocks until the context is done or
// Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.Printf("watchdog sweep failed: %v", err)
			}
		}
	}
}

// Shutdown stops the scan loop.
func (s *Service) Shutdown() {
	close(s.shutdownCh)
}

// Sweep fails every running subtask past its deadline. Expiry goes through
// the reconciler, so an expired last sibling still triggers merge and
// resume like any other failure.
func (s *Service) Sweep(ctx context.Context) error {
	running, err := s.store.ListRunning(ctx)
	if err != nil {
		return err
	}
	now := clock.Now()
	for _, record := range running {
		if !record.Expired(now) {
			continue
		}
		log.Printf("subtask %v (%v) exceeded its deadline, failing", record.ID, record.Definition.Label)
		if err := s.reconciler.Fail(ctx, record.ID, "sub-agent exceeded its liveness deadline"); err != nil {
			log.Printf("failed to expire subtask %v: %v", record.ID, err)
		}
	}
	return nil
}
