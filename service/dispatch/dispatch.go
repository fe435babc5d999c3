// Package dispatch implements the fan-out half of sub-agent coordination:
// given a coordinator session and a list of task definitions it persists one
// subtask per definition, starts one child session per subtask, and launches
// each child without blocking the caller.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/autarch-dev/autarch/internal/clock"
	"github.com/autarch-dev/autarch/internal/idgen"
	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/progress"
	"github.com/autarch-dev/autarch/service/diff"
	"github.com/autarch-dev/autarch/service/event"
	"github.com/autarch-dev/autarch/service/reconcile"
	"github.com/autarch-dev/autarch/service/registry"
	"github.com/autarch-dev/autarch/service/subtask"
	"github.com/autarch-dev/autarch/tracing"
)

// DefaultMaxRuntime bounds how long a launched sub-agent may stay running
// before the watchdog fails its subtask.
const DefaultMaxRuntime = 15 * time.Minute

// Request describes one fan-out: the coordinator session spawning the work,
// the workflow it belongs to, the branches whose diff the sub-agents review,
// and one definition per sub-agent.
type Request struct {
	ParentSessionID string
	WorkflowID      string
	AgentRole       string
	BaseBranch      string
	WorkBranch      string
	Tasks           []task.Definition
}

// Service fans a coordinator's task list out to sub-agent sessions.
type Service struct {
	store      subtask.Store
	registry   *registry.Service
	reconciler *reconcile.Service
	diffSource diff.Source
	events     *event.Service
	maxRuntime time.Duration
}

// Option customises the dispatcher.
type Option func(*Service)

// WithMaxRuntime overrides the per-subtask liveness deadline.
func WithMaxRuntime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxRuntime = d
		}
	}
}

// New creates a dispatcher.
func New(store subtask.Store, reg *registry.Service, reconciler *reconcile.Service, diffSource diff.Source, events *event.Service, opts ...Option) *Service {
	ret := &Service{
		store:      store,
		registry:   reg,
		reconciler: reconciler,
		diffSource: diffSource,
		events:     events,
		maxRuntime: DefaultMaxRuntime,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Dispatch validates the request, persists every subtask in pending status,
// and then launches one child session per subtask. All records exist before
// the first launch, so a per-task failure routed into the fan-in can never
// observe an incomplete sibling set and resume the coordinator early.
//
// Per-task failures after the records exist do not abort the fan-out: the
// affected subtask is failed through the reconciler, which guarantees the
// coordinator is still resumed once every sibling is terminal (including the
// N=1 case where dispatch failure is the only terminal report).
func (s *Service) Dispatch(ctx context.Context, request *Request) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.Dispatch", "PRODUCER")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if err = s.validate(ctx, request); err != nil {
		return nil, err
	}
	span.WithAttributes(map[string]string{
		"session.id":  request.ParentSessionID,
		"workflow.id": request.WorkflowID,
		"task.count":  fmt.Sprintf("%d", len(request.Tasks)),
	})

	subtaskIDs := make([]string, 0, len(request.Tasks))
	for i := range request.Tasks {
		record := &task.Subtask{
			ID:              idgen.New(),
			ParentSessionID: request.ParentSessionID,
			WorkflowID:      request.WorkflowID,
			Definition:      request.Tasks[i],
			Status:          task.StatusPending,
			CreatedAt:       clock.Now(),
		}
		if err = s.store.Create(ctx, record); err != nil {
			err = fmt.Errorf("failed to persist subtask %q: %w", request.Tasks[i].Label, err)
			return nil, err
		}
		subtaskIDs = append(subtaskIDs, record.ID)
	}

	progress.UpdateCtx(ctx, progress.Delta{Total: len(subtaskIDs)})
	diffText := s.fetchDiff(ctx, request)

	for i, id := range subtaskIDs {
		if launchErr := s.launch(ctx, request, id, &request.Tasks[i], diffText); launchErr != nil {
			log.Printf("failed to launch subtask %v (%v): %v", id, request.Tasks[i].Label, launchErr)
			if failErr := s.reconciler.Fail(ctx, id, launchErr.Error()); failErr != nil {
				log.Printf("failed to record dispatch failure for subtask %v: %v", id, failErr)
			}
		}
	}
	return subtaskIDs, nil
}

func (s *Service) validate(ctx context.Context, request *Request) error {
	if request.ParentSessionID == "" {
		return fmt.Errorf("parentSessionId is required")
	}
	if request.WorkflowID == "" {
		return fmt.Errorf("workflowId is required")
	}
	if len(request.Tasks) == 0 {
		return fmt.Errorf("at least one task definition is required")
	}
	for i := range request.Tasks {
		if err := request.Tasks[i].Validate(); err != nil {
			return fmt.Errorf("task %d: %w", i, err)
		}
	}
	coordinator, err := s.registry.Get(ctx, request.ParentSessionID)
	if err != nil {
		return fmt.Errorf("failed to load coordinator session: %w", err)
	}
	if coordinator == nil {
		return fmt.Errorf("%w: %v", registry.ErrSessionNotFound, request.ParentSessionID)
	}
	return nil
}

// fetchDiff retrieves the branch diff once per fan-out. A failed retrieval
// degrades to an explicit placeholder rather than aborting the dispatch.
func (s *Service) fetchDiff(ctx context.Context, request *Request) string {
	if s.diffSource == nil || request.BaseBranch == "" || request.WorkBranch == "" {
		return diff.Unavailable
	}
	diffText, err := s.diffSource.Diff(ctx, request.BaseBranch, request.WorkBranch)
	if err != nil {
		log.Printf("failed to fetch diff %v...%v: %v", request.BaseBranch, request.WorkBranch, err)
		return diff.Unavailable
	}
	if diffText == "" {
		return diff.Unavailable
	}
	return diffText
}

func (s *Service) launch(ctx context.Context, request *Request, subtaskID string, def *task.Definition, diffText string) error {
	session, err := s.registry.Start(ctx, registry.ContextSubtask, subtaskID, request.AgentRole, request.ParentSessionID)
	if err != nil {
		return fmt.Errorf("failed to start sub-agent session: %w", err)
	}
	deadline := clock.Now().Add(s.maxRuntime)
	if err = s.store.Start(ctx, subtaskID, &deadline); err != nil {
		return fmt.Errorf("failed to mark subtask running: %w", err)
	}
	input := renderInput(def, diffText)
	if err = s.registry.Launch(ctx, session.ID, subtaskID, input); err != nil {
		return fmt.Errorf("failed to launch sub-agent session: %w", err)
	}
	progress.UpdateCtx(ctx, progress.Delta{Running: 1})
	s.publishDispatched(ctx, request, subtaskID, session.ID)
	return nil
}

func (s *Service) publishDispatched(ctx context.Context, request *Request, subtaskID, sessionID string) {
	if s.events == nil {
		return
	}
	publisher, err := event.PublisherOf[string](s.events)
	if err != nil {
		log.Printf("failed to acquire dispatch event publisher: %v", err)
		return
	}
	evt := event.NewEvent(&event.Context{
		WorkflowID: request.WorkflowID,
		SessionID:  sessionID,
		SubtaskID:  subtaskID,
		EventType:  event.TypeSubtaskDispatched,
	}, subtaskID)
	if err := publisher.Publish(ctx, evt); err != nil {
		log.Printf("failed to publish dispatch event: %v", err)
	}
}
