// Package runner executes queued session runs. A pool of workers consumes
// the registry's run queue: sub-agent launches feed their outcome into the
// fan-in reconciler, coordinator resumes surface failures as coordination
// events. A worker never lets a run failure escape unobserved.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/autarch-dev/autarch/service/event"
	"github.com/autarch-dev/autarch/service/messaging"
	"github.com/autarch-dev/autarch/service/reconcile"
	"github.com/autarch-dev/autarch/service/registry"
	"github.com/autarch-dev/autarch/service/subtask"
)

// Config represents runner service configuration
type Config struct {
	// WorkerCount is the number of workers processing session runs
	WorkerCount int
}

// DefaultConfig returns the default runner configuration
func DefaultConfig() Config {
	return Config{WorkerCount: 5}
}

// Service runs queued session deliveries.
type Service struct {
	config     Config
	registry   *registry.Service
	reconciler *reconcile.Service
	store      subtask.Store
	events     *event.Service

	workers  []*worker
	workerWg sync.WaitGroup
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a runner service.
func New(config Config, reg *registry.Service, reconciler *reconcile.Service, store subtask.Store, events *event.Service) (*Service, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if store == nil {
		return nil, fmt.Errorf("subtask store is required")
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	return &Service{
		config:     config,
		registry:   reg,
		reconciler: reconciler,
		store:      store,
		events:     events,
	}, nil
}

// Start begins consuming the run queue.
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		worker := &worker{
			id:       i,
			service:  s,
			ctx:      workerCtx,
			cancelFn: cancel,
		}
		s.workers = append(s.workers, worker)
		s.workerWg.Add(1)
		go worker.run()
	}
	return nil
}

// Shutdown stops all workers and waits for in-flight runs to finish.
func (s *Service) Shutdown() {
	for _, w := range s.workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
}

func (w *worker) run() {
	defer w.service.workerWg.Done()

	queue := w.service.registry.Queue()
	for {
		msg, err := queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.processRun(w.ctx, msg); pErr != nil {
			log.Printf("worker %d: failed to process run: %v", w.id, pErr)
		}
	}
}

// processRun executes one queued delivery. Failures are terminal for the
// delivery (the outcome is recorded through the reconciler or broadcast), so
// the message is always acked rather than redelivered.
func (s *Service) processRun(ctx context.Context, msg messaging.Message[registry.Run]) error {
	run := msg.T()
	defer func() {
		if err := msg.Ack(); err != nil {
			log.Printf("failed to ack run for session %v: %v", run.SessionID, err)
		}
	}()

	handle, err := s.registry.GetOrRestore(ctx, run.SessionID)
	if err != nil {
		s.reportFailure(ctx, run, fmt.Sprintf("failed to restore session %v: %v", run.SessionID, err))
		return nil
	}
	if handle == nil {
		s.reportFailure(ctx, run, fmt.Sprintf("session %v no longer exists", run.SessionID))
		return nil
	}

	_, runErr := handle.Run(ctx, run.Input)
	if run.SubtaskID == "" {
		if runErr != nil {
			s.reportFailure(ctx, run, fmt.Sprintf("session %v run failed: %v", run.SessionID, runErr))
		}
		return nil
	}

	if runErr != nil {
		return s.reconciler.Fail(ctx, run.SubtaskID, runErr.Error())
	}
	// Well-behaved sub-agents settle their subtask through the result
	// submission tool before returning. A run that returns without doing so
	// would leave its siblings waiting forever, so it counts as a failure.
	record, err := s.store.Get(ctx, run.SubtaskID)
	if err != nil {
		s.reportFailure(ctx, run, fmt.Sprintf("failed to verify subtask %v after run: %v", run.SubtaskID, err))
		return nil
	}
	if !record.Status.IsTerminal() {
		return s.reconciler.Fail(ctx, run.SubtaskID, "session ended without submitting a result")
	}
	return nil
}

// reportFailure records a run failure that cannot be attributed to a live
// coordinator resume path. Sub-agent runs route through the fan-in; other
// runs are broadcast so observers see the failure.
func (s *Service) reportFailure(ctx context.Context, run *registry.Run, message string) {
	log.Printf("%s", message)
	if run.SubtaskID != "" {
		if err := s.reconciler.Fail(ctx, run.SubtaskID, message); err != nil {
			log.Printf("failed to record run failure for subtask %v: %v", run.SubtaskID, err)
		}
		return
	}
	if s.events == nil {
		return
	}
	publisher, err := event.PublisherOf[reconcile.CoordinationFailure](s.events)
	if err != nil {
		log.Printf("failed to acquire failure event publisher: %v", err)
		return
	}
	evt := event.NewEvent(&event.Context{
		SessionID: run.SessionID,
		EventType: event.TypeCoordinationError,
	}, reconcile.CoordinationFailure{SessionID: run.SessionID, Error: message})
	if err := publisher.Publish(ctx, evt); err != nil {
		log.Printf("failed to publish run failure event: %v", err)
	}
}
