// Package gate advances workflows through their approval-gated stages. A
// stage-completion event either advances the workflow directly or produces a
// pending artifact that parks the workflow until a decision arrives; an
// approval policy in the context can decide automatically.
package gate

import (
	"context"
	"fmt"
	"log"

	"github.com/autarch-dev/autarch/internal/clock"
	"github.com/autarch-dev/autarch/internal/idgen"
	"github.com/autarch-dev/autarch/model/workflow"
	"github.com/autarch-dev/autarch/policy"
	"github.com/autarch-dev/autarch/service/dao"
	"github.com/autarch-dev/autarch/service/event"
)

// autoDecisionReason marks decisions taken by policy rather than a human.
const autoDecisionReason = "auto-approved by policy"

// Service owns stage transitions and artifact decisions.
type Service struct {
	workflowDao dao.Service[string, workflow.Workflow]
	artifactDao dao.Service[string, workflow.Artifact]
	events      *event.Service
}

// New creates a gate service.
func New(workflowDao dao.Service[string, workflow.Workflow], artifactDao dao.Service[string, workflow.Artifact], events *event.Service) *Service {
	return &Service{workflowDao: workflowDao, artifactDao: artifactDao, events: events}
}

// Submit applies a stage-completion event to the workflow. Ungated events
// advance the stage immediately and return a nil artifact; gated events
// persist a pending artifact and park the workflow. When the context policy
// auto-approves the artifact type the decision is taken in the same call.
func (s *Service) Submit(ctx context.Context, workflowID, completionEvent, content string) (*workflow.Artifact, error) {
	flow, err := s.workflowDao.Load(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %v: %w", workflowID, err)
	}
	if flow == nil {
		return nil, fmt.Errorf("workflow %v not found", workflowID)
	}
	if flow.AwaitingApproval {
		return nil, fmt.Errorf("workflow %v already awaits a decision on %v", workflowID, flow.PendingArtifact)
	}

	transition, err := workflow.Resolve(flow, completionEvent)
	if err != nil {
		return nil, err
	}
	now := clock.Now()

	if transition.Kind == workflow.TransitionAuto {
		if !flow.Advance(transition.Next, now) {
			return nil, fmt.Errorf("workflow %v cannot move from %v to %v", workflowID, flow.Status, transition.Next)
		}
		if err := s.workflowDao.Save(ctx, flow); err != nil {
			return nil, fmt.Errorf("failed to save workflow %v: %w", workflowID, err)
		}
		return nil, nil
	}

	artifact := &workflow.Artifact{
		ID:         idgen.New(),
		WorkflowID: workflowID,
		Type:       transition.Artifact,
		Status:     workflow.ArtifactPending,
		Content:    content,
		CreatedAt:  now,
	}
	if err := s.artifactDao.Save(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}
	flow.Park(transition.Artifact, now)
	if err := s.workflowDao.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save workflow %v: %w", workflowID, err)
	}
	s.publish(ctx, event.TypeArtifactSubmitted, flow.ID, artifact)

	if policy.FromContext(ctx).AutoApproves(string(artifact.Type)) {
		return s.Decide(ctx, artifact.ID, true, autoDecisionReason)
	}
	return artifact, nil
}

// Decide records the approval or denial of a pending artifact. Approval
// advances the workflow past the gated stage (honouring skipped stages);
// denial returns the workflow to the agent for rework in the same stage. A
// second decision for the same artifact is a conflict.
func (s *Service) Decide(ctx context.Context, artifactID string, approved bool, reason string) (*workflow.Artifact, error) {
	artifact, err := s.artifactDao.Load(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %v: %w", artifactID, err)
	}
	if artifact == nil {
		return nil, fmt.Errorf("artifact %v not found", artifactID)
	}
	if artifact.Status != workflow.ArtifactPending {
		return nil, fmt.Errorf("artifact %v already decided (%v)", artifactID, artifact.Status)
	}

	now := clock.Now()
	artifact.Status = workflow.ArtifactDenied
	if approved {
		artifact.Status = workflow.ArtifactApproved
	}
	artifact.Reason = reason
	artifact.DecidedAt = &now
	if err := s.artifactDao.Save(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to save artifact %v: %w", artifactID, err)
	}

	flow, err := s.workflowDao.Load(ctx, artifact.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %v: %w", artifact.WorkflowID, err)
	}
	if flow == nil {
		return nil, fmt.Errorf("workflow %v not found", artifact.WorkflowID)
	}

	if approved {
		next, ok := flow.NextUnskipped()
		if !ok {
			return nil, fmt.Errorf("workflow %v has no successor stage", flow.ID)
		}
		if !flow.Advance(next, now) {
			return nil, fmt.Errorf("workflow %v cannot move from %v to %v", flow.ID, flow.Status, next)
		}
	} else {
		// Denied: the stage stays, the agent reworks and resubmits.
		flow.AwaitingApproval = false
		flow.PendingArtifact = ""
		flow.UpdatedAt = now
	}
	if err := s.workflowDao.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save workflow %v: %w", flow.ID, err)
	}
	s.publish(ctx, event.TypeArtifactDecided, flow.ID, artifact)
	return artifact, nil
}

// SkipStage marks a stage as bypassed, so subsequent advances step over it.
func (s *Service) SkipStage(ctx context.Context, workflowID string, stage workflow.Status) error {
	if !stage.IsValid() {
		return fmt.Errorf("unknown stage %q", stage)
	}
	flow, err := s.workflowDao.Load(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %v: %w", workflowID, err)
	}
	if flow == nil {
		return fmt.Errorf("workflow %v not found", workflowID)
	}
	if stage.Order() <= flow.Status.Order() {
		return fmt.Errorf("stage %v is not ahead of workflow %v (%v)", stage, workflowID, flow.Status)
	}
	flow.Skip(stage)
	flow.UpdatedAt = clock.Now()
	return s.workflowDao.Save(ctx, flow)
}

func (s *Service) publish(ctx context.Context, eventType, workflowID string, artifact *workflow.Artifact) {
	if s.events == nil {
		return
	}
	publisher, err := event.PublisherOf[workflow.Artifact](s.events)
	if err != nil {
		log.Printf("failed to acquire artifact event publisher: %v", err)
		return
	}
	evt := event.NewEvent(&event.Context{
		WorkflowID: workflowID,
		EventType:  eventType,
	}, *artifact)
	if err := publisher.Publish(ctx, evt); err != nil {
		log.Printf("failed to publish %v event: %v", eventType, err)
	}
}
