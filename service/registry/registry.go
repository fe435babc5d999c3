package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/autarch-dev/autarch/internal/clock"
	"github.com/autarch-dev/autarch/internal/idgen"
	"github.com/autarch-dev/autarch/service/dao"
	"github.com/autarch-dev/autarch/service/messaging"
)

// ErrSessionNotFound is returned when input cannot be delivered because the
// session record no longer exists. Callers must treat this as "cannot
// resume", not crash.
var ErrSessionNotFound = errors.New("registry: session not found")

// Service tracks agent sessions and delivers input to them. Deliveries go
// over the run queue and are fire-and-forget: Resume and Launch return once
// the run is requested, never waiting for the agent to finish.
type Service struct {
	sessionDao dao.Service[string, Session]
	queue      messaging.Queue[Run]
	agent      Agent
	handles    *cache.Cache
}

// Handle is an in-memory running view of a session.
type Handle struct {
	session *Session
	agent   Agent
}

// Session returns the persisted session record backing the handle.
func (h *Handle) Session() *Session { return h.session }

// Run delivers input to the session synchronously and returns its terminal
// output. Used by runner workers, not by coordination callers.
func (h *Handle) Run(ctx context.Context, input string) (string, error) {
	return h.agent.Run(ctx, h.session, input)
}

// New creates a session registry.
func New(sessionDao dao.Service[string, Session], queue messaging.Queue[Run], agent Agent) *Service {
	return &Service{
		sessionDao: sessionDao,
		queue:      queue,
		agent:      agent,
		handles:    cache.New(30*time.Minute, 10*time.Minute),
	}
}

// Start creates and persists a new session record. It has no side effect
// beyond persistence - callers launch the agent separately.
func (s *Service) Start(ctx context.Context, contextType ContextType, contextID, agentRole, parentSessionID string) (*Session, error) {
	if contextID == "" {
		return nil, fmt.Errorf("contextId is required")
	}
	now := clock.Now()
	session := &Session{
		ID:              idgen.New(),
		ContextType:     contextType,
		ContextID:       contextID,
		AgentRole:       agentRole,
		ParentSessionID: parentSessionID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.sessionDao.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// Get returns the persisted session record, or nil when absent.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	return s.sessionDao.Load(ctx, id)
}

// GetOrRestore returns a running handle for the session, reconstructing it
// from persisted state when it is not currently active. Returns (nil, nil)
// when the session record does not exist.
func (s *Service) GetOrRestore(ctx context.Context, id string) (*Handle, error) {
	if cached, ok := s.handles.Get(id); ok {
		return cached.(*Handle), nil
	}
	session, err := s.sessionDao.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	handle := &Handle{session: session, agent: s.agent}
	s.handles.Set(id, handle, cache.DefaultExpiration)
	return handle, nil
}

// Evict drops the in-memory handle; the persisted record is untouched.
func (s *Service) Evict(id string) {
	s.handles.Delete(id)
}

// Launch enqueues the first input for a freshly started sub-agent session.
// The call returns once the run is queued.
func (s *Service) Launch(ctx context.Context, sessionID, subtaskID, input string) error {
	return s.enqueue(ctx, &Run{SessionID: sessionID, SubtaskID: subtaskID, Input: input})
}

// Resume delivers new input to an idle session, continuing its turn
// sequence. The call returns once resumption is requested; failures of the
// resumed run are reported asynchronously and never propagate back here.
func (s *Service) Resume(ctx context.Context, sessionID, input string) error {
	session, err := s.sessionDao.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s.enqueue(ctx, &Run{SessionID: sessionID, Input: input, Resume: true})
}

func (s *Service) enqueue(ctx context.Context, run *Run) error {
	if err := s.queue.Publish(ctx, run); err != nil {
		return fmt.Errorf("failed to queue run for session %s: %w", run.SessionID, err)
	}
	return nil
}

// Queue exposes the run queue consumed by runner workers.
func (s *Service) Queue() messaging.Queue[Run] { return s.queue }
