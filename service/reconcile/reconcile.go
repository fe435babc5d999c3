// Package reconcile implements the fan-in half of sub-agent coordination.
// Each terminal report atomically settles one subtask and checks its
// siblings; the report that settles the last outstanding sibling is the only
// one that merges findings and resumes the coordinator session.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/progress"
	"github.com/autarch-dev/autarch/service/event"
	"github.com/autarch-dev/autarch/service/merge"
	"github.com/autarch-dev/autarch/service/registry"
	"github.com/autarch-dev/autarch/service/subtask"
	"github.com/autarch-dev/autarch/tracing"
)

// CoordinationFailure is broadcast when a coordinator can no longer be
// resumed and manual intervention is needed. The merge has still happened
// and the findings remain in the store.
type CoordinationFailure struct {
	WorkflowID string `json:"workflowId"`
	SessionID  string `json:"sessionId"`
	Error      string `json:"error"`
}

// Service settles subtask outcomes and resumes coordinators.
type Service struct {
	store    subtask.Store
	registry *registry.Service
	merger   *merge.Service
	events   *event.Service
}

// New creates a reconciler.
func New(store subtask.Store, reg *registry.Service, merger *merge.Service, events *event.Service) *Service {
	return &Service{store: store, registry: reg, merger: merger, events: events}
}

// Complete settles a subtask as completed with the given findings payload.
// The payload is stored opaque; it is only re-validated at merge time.
func (s *Service) Complete(ctx context.Context, subtaskID string, findings json.RawMessage) error {
	outcome, err := s.store.Complete(ctx, subtaskID, findings)
	if err != nil {
		return fmt.Errorf("failed to complete subtask %v: %w", subtaskID, err)
	}
	return s.afterSettle(ctx, event.TypeSubtaskCompleted, outcome)
}

// Fail settles a subtask as failed with the given error. Dispatch failures
// and sub-agent crashes both land here, so one sibling crashing still counts
// toward the fan-in and becomes a failed entry in the merged report.
func (s *Service) Fail(ctx context.Context, subtaskID string, errMsg string) error {
	outcome, err := s.store.Fail(ctx, subtaskID, errMsg)
	if err != nil {
		return fmt.Errorf("failed to fail subtask %v: %w", subtaskID, err)
	}
	return s.afterSettle(ctx, event.TypeSubtaskFailed, outcome)
}

func (s *Service) afterSettle(ctx context.Context, eventType string, outcome *subtask.Outcome) error {
	if !outcome.Transitioned {
		// Duplicate or late report: the record was already terminal.
		// Neither publishes an event nor re-runs the all-done check.
		log.Printf("ignoring duplicate terminal report for subtask %v (status %v)",
			outcome.Subtask.ID, outcome.Subtask.Status)
		return nil
	}
	s.publishSettled(ctx, eventType, outcome.Subtask)

	delta := progress.Delta{}
	if outcome.Subtask.StartedAt != nil {
		delta.Running = -1
	}
	if outcome.Subtask.Status == task.StatusCompleted {
		delta.Completed = 1
	} else {
		delta.Failed = 1
	}
	progress.UpdateCtx(ctx, delta)

	if !outcome.AllSettled {
		return nil
	}
	return s.resumeCoordinator(ctx, outcome.Subtask)
}

// resumeCoordinator merges sibling findings and delivers them to the
// coordinator session. Irrecoverable failures are broadcast rather than
// returned so the dispatching side never hangs without a signal; the
// settled subtask state is already committed either way.
func (s *Service) resumeCoordinator(ctx context.Context, last *task.Subtask) error {
	ctx, span := tracing.StartSpan(ctx, "reconcile.resumeCoordinator", "INTERNAL")
	defer tracing.EndSpan(span, nil)
	span.WithAttributes(map[string]string{
		"session.id":  last.ParentSessionID,
		"workflow.id": last.WorkflowID,
	})

	report, err := s.merger.Render(ctx, last.ParentSessionID)
	if err != nil {
		s.broadcastFailure(ctx, last, fmt.Sprintf("failed to merge subtask results: %v", err))
		return nil
	}
	err = s.registry.Resume(ctx, last.ParentSessionID, report)
	if errors.Is(err, registry.ErrSessionNotFound) {
		s.broadcastFailure(ctx, last,
			fmt.Sprintf("coordinator session %v not found; merged results preserved in subtask store", last.ParentSessionID))
		return nil
	}
	if err != nil {
		s.broadcastFailure(ctx, last, fmt.Sprintf("failed to resume coordinator %v: %v", last.ParentSessionID, err))
		return nil
	}
	s.publishMerged(ctx, last)
	return nil
}

func (s *Service) publishSettled(ctx context.Context, eventType string, settled *task.Subtask) {
	if s.events == nil || settled == nil {
		return
	}
	publisher, err := event.PublisherOf[task.Subtask](s.events)
	if err != nil {
		log.Printf("failed to acquire subtask event publisher: %v", err)
		return
	}
	evt := event.NewEvent(&event.Context{
		WorkflowID: settled.WorkflowID,
		SessionID:  settled.ParentSessionID,
		SubtaskID:  settled.ID,
		EventType:  eventType,
	}, *settled)
	if err := publisher.Publish(ctx, evt); err != nil {
		log.Printf("failed to publish %v event: %v", eventType, err)
	}
}

func (s *Service) publishMerged(ctx context.Context, last *task.Subtask) {
	if s.events == nil {
		return
	}
	publisher, err := event.PublisherOf[string](s.events)
	if err != nil {
		log.Printf("failed to acquire merge event publisher: %v", err)
		return
	}
	evt := event.NewEvent(&event.Context{
		WorkflowID: last.WorkflowID,
		SessionID:  last.ParentSessionID,
		EventType:  event.TypeResultsMerged,
	}, last.ParentSessionID)
	if err := publisher.Publish(ctx, evt); err != nil {
		log.Printf("failed to publish merge event: %v", err)
	}
}

func (s *Service) broadcastFailure(ctx context.Context, last *task.Subtask, message string) {
	log.Printf("coordination failure for workflow %v: %v", last.WorkflowID, message)
	if s.events == nil {
		return
	}
	publisher, err := event.PublisherOf[CoordinationFailure](s.events)
	if err != nil {
		log.Printf("failed to acquire failure event publisher: %v", err)
		return
	}
	evt := event.NewEvent(&event.Context{
		WorkflowID: last.WorkflowID,
		SessionID:  last.ParentSessionID,
		EventType:  event.TypeCoordinationError,
	}, CoordinationFailure{
		WorkflowID: last.WorkflowID,
		SessionID:  last.ParentSessionID,
		Error:      message,
	})
	if err := publisher.Publish(ctx, evt); err != nil {
		log.Printf("failed to publish coordination failure: %v", err)
	}
}
