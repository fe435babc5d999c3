package workflow

import "time"

// ArtifactStatus is the approval state of a stage artifact.
type ArtifactStatus string

const (
	ArtifactPending  ArtifactStatus = "pending"
	ArtifactApproved ArtifactStatus = "approved"
	ArtifactDenied   ArtifactStatus = "denied"
)

// Artifact is a stage's approval-gated output document (scope card, research
// card, plan or review card). The content is opaque to the coordination
// engine.
type Artifact struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId"`
	Type       ArtifactType   `json:"type"`
	Status     ArtifactStatus `json:"status"`
	Content    string         `json:"content,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	DecidedAt  *time.Time     `json:"decidedAt,omitempty"`
}
