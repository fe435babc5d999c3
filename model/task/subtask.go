package task

import (
	"encoding/json"
	"time"
)

// Status tracks a subtask's lifecycle. Transitions are monotonic:
// pending -> running -> {completed, failed}; the terminal transition happens
// at most once per subtask.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Subtask is a fanned-out unit of work owned by a coordinator session.
// Records are never deleted - they are retained for the merge and for audit.
type Subtask struct {
	ID              string          `json:"id"`
	ParentSessionID string          `json:"parentSessionId"`
	WorkflowID      string          `json:"workflowId"`
	Definition      Definition      `json:"taskDefinition"`
	Status          Status          `json:"status"`
	Findings        json.RawMessage `json:"findings,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
}

// Expired reports whether a running subtask has exceeded its liveness
// deadline.
func (s *Subtask) Expired(now time.Time) bool {
	if s.Status != StatusRunning || s.Deadline == nil {
		return false
	}
	return now.After(*s.Deadline)
}
