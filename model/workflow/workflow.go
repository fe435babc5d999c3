package workflow

import "time"

// Workflow is a unit of development work progressing through gated stages.
// AwaitingApproval is true iff a produced artifact is pending a human
// decision; PendingArtifact names that artifact.
type Workflow struct {
	ID               string            `json:"id"`
	Status           Status            `json:"status"`
	AwaitingApproval bool              `json:"awaitingApproval"`
	PendingArtifact  ArtifactType      `json:"pendingArtifactType,omitempty"`
	BaseBranch       string            `json:"baseBranch,omitempty"`
	WorkBranch       string            `json:"workBranch,omitempty"`
	SkippedStages    map[Status]bool   `json:"skippedStages,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// New creates a workflow in the backlog stage.
func New(id string, createdAt time.Time) *Workflow {
	return &Workflow{
		ID:        id,
		Status:    StatusBacklog,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Skip records a stage bypassed via the fast path. Skipped stages are
// treated as already satisfied when the next stage's prerequisites are
// evaluated.
func (w *Workflow) Skip(stage Status) {
	if w.SkippedStages == nil {
		w.SkippedStages = make(map[Status]bool)
	}
	w.SkippedStages[stage] = true
}

// Skipped reports whether the stage was bypassed.
func (w *Workflow) Skipped(stage Status) bool {
	return w.SkippedStages[stage]
}

// NextUnskipped returns the next stage after the current one that is not in
// the skipped set. Returns false when the workflow is already done.
func (w *Workflow) NextUnskipped() (Status, bool) {
	current := w.Status
	for {
		next, ok := current.Next()
		if !ok {
			return "", false
		}
		if !w.Skipped(next) {
			return next, true
		}
		current = next
	}
}

// Advance moves the workflow to the given status and clears any pending
// approval state. Callers resolve the target via Resolve/NextUnskipped; the
// method itself only guards against moving backwards.
func (w *Workflow) Advance(next Status, at time.Time) bool {
	if next.Order() <= w.Status.Order() {
		return false
	}
	w.Status = next
	w.AwaitingApproval = false
	w.PendingArtifact = ""
	w.UpdatedAt = at
	return true
}

// Park records that the workflow is blocked on an artifact approval.
func (w *Workflow) Park(artifact ArtifactType, at time.Time) {
	w.AwaitingApproval = true
	w.PendingArtifact = artifact
	w.UpdatedAt = at
}
