package registry

import (
	"context"
	"time"
)

// ContextType names the kind of context an agent session serves.
type ContextType string

const (
	ContextChannel  ContextType = "channel"
	ContextWorkflow ContextType = "workflow"
	ContextSubtask  ContextType = "subtask"
)

// Session is a resumable conversation with one agent. ParentSessionID is a
// weak back-reference: a child session's lifecycle is independent of whether
// the parent record still exists, and the parent never owns the child - it
// only knows to be resumed when the children are done.
type Session struct {
	ID              string      `json:"id"`
	ContextType     ContextType `json:"contextType"`
	ContextID       string      `json:"contextId"`
	AgentRole       string      `json:"agentRole"`
	ParentSessionID string      `json:"parentSessionId,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Agent is the language-model plumbing contract: it runs one session turn
// sequence to completion, returning the terminal output or an error. Prompt
// construction and token streaming live behind this interface, outside the
// coordination engine.
type Agent interface {
	Run(ctx context.Context, session *Session, input string) (string, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, session *Session, input string) (string, error)

func (f AgentFunc) Run(ctx context.Context, session *Session, input string) (string, error) {
	return f(ctx, session, input)
}

// Run is one queued delivery of input to a session. SubtaskID is set for
// sub-agent launches so run failures can be routed into the fan-in failure
// path; Resume marks deliveries that continue an idle session.
type Run struct {
	SessionID string `json:"sessionId"`
	SubtaskID string `json:"subtaskId,omitempty"`
	Input     string `json:"input"`
	Resume    bool   `json:"resume,omitempty"`
}
