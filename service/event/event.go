package event

import "time"

// Context identifies what a coordination event relates to.
type Context struct {
	WorkflowID string `json:"workflowId,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	SubtaskID  string `json:"subtaskId,omitempty"`
	EventType  string `json:"eventType"`
}

// Event types published by the coordination engine.
const (
	TypeSubtaskDispatched = "subtask.dispatched"
	TypeSubtaskCompleted  = "subtask.completed"
	TypeSubtaskFailed     = "subtask.failed"
	TypeResultsMerged     = "results.merged"
	TypeArtifactSubmitted = "artifact.submitted"
	TypeArtifactDecided   = "artifact.decided"
	TypeCoordinationError = "coordination.error"
)

type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
