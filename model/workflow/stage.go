package workflow

import "fmt"

// Status represents a workflow stage. Stages advance along a fixed total
// order; there is no in-core path backwards.
type Status string

const (
	StatusBacklog     Status = "backlog"
	StatusScoping     Status = "scoping"
	StatusResearching Status = "researching"
	StatusPlanning    Status = "planning"
	StatusInProgress  Status = "in_progress"
	StatusReview      Status = "review"
	StatusDone        Status = "done"
)

// stageOrder fixes the total order of stages.
var stageOrder = []Status{
	StatusBacklog,
	StatusScoping,
	StatusResearching,
	StatusPlanning,
	StatusInProgress,
	StatusReview,
	StatusDone,
}

// Order returns the position of the status in the stage progression, or -1
// for an unknown status.
func (s Status) Order() int {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether the status is one of the known stages.
func (s Status) IsValid() bool { return s.Order() != -1 }

// IsTerminal reports whether the workflow has no further stage.
func (s Status) IsTerminal() bool { return s == StatusDone }

// Next returns the immediate successor stage. StatusDone has no successor.
func (s Status) Next() (Status, bool) {
	idx := s.Order()
	if idx == -1 || idx == len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[idx+1], true
}

// ArtifactType identifies the approval-gated document a stage produces.
type ArtifactType string

const (
	ArtifactScopeCard    ArtifactType = "scope_card"
	ArtifactResearchCard ArtifactType = "research_card"
	ArtifactPlan         ArtifactType = "plan"
	ArtifactReviewCard   ArtifactType = "review_card"
)

// artifactStages maps each artifact type to the stage it gates: the workflow
// cannot leave the stage until the artifact is approved.
var artifactStages = map[ArtifactType]Status{
	ArtifactScopeCard:    StatusScoping,
	ArtifactResearchCard: StatusResearching,
	ArtifactPlan:         StatusPlanning,
	ArtifactReviewCard:   StatusReview,
}

// GatedStage returns the stage the artifact type gates.
func (a ArtifactType) GatedStage() (Status, bool) {
	s, ok := artifactStages[a]
	return s, ok
}

// gatedEvents maps tool-completion event names to the artifact whose
// approval they request. autoEvents lists completion events that advance the
// workflow without a gate.
var gatedEvents = map[string]ArtifactType{
	"scope.submitted":    ArtifactScopeCard,
	"research.submitted": ArtifactResearchCard,
	"plan.submitted":     ArtifactPlan,
	"review.submitted":   ArtifactReviewCard,
}

var autoEvents = map[string]bool{
	"workflow.started":    true,
	"execution.completed": true,
}

// TransitionKind discriminates the two outcomes of Resolve.
type TransitionKind string

const (
	// TransitionAuto advances the workflow immediately.
	TransitionAuto TransitionKind = "auto"
	// TransitionAwaitApproval parks the workflow until the artifact decision.
	TransitionAwaitApproval TransitionKind = "await_approval"
)

// Transition is the resolved effect of a completion event on a workflow.
type Transition struct {
	Kind     TransitionKind
	Next     Status
	Artifact ArtifactType
}

// Resolve maps a tool-completion event on the given workflow to either an
// automatic next status or a pending-approval state. Stages recorded in the
// workflow's skipped set are treated as already satisfied, so the resolved
// next status always lands on an unskipped stage.
func Resolve(w *Workflow, event string) (*Transition, error) {
	if w == nil {
		return nil, fmt.Errorf("workflow is nil")
	}
	if !w.Status.IsValid() {
		return nil, fmt.Errorf("unknown workflow status %q", w.Status)
	}
	if artifact, ok := gatedEvents[event]; ok {
		if w.Status.IsTerminal() {
			return nil, fmt.Errorf("workflow %v is done; event %q has no effect", w.ID, event)
		}
		return &Transition{Kind: TransitionAwaitApproval, Artifact: artifact}, nil
	}
	if autoEvents[event] {
		next, ok := w.NextUnskipped()
		if !ok {
			return nil, fmt.Errorf("workflow %v has no successor stage for event %q", w.ID, event)
		}
		return &Transition{Kind: TransitionAuto, Next: next}, nil
	}
	return nil, fmt.Errorf("unknown completion event %q", event)
}
