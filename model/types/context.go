package types

import "context"

type callerContextKey string

// CallerContextKey keys the tool caller context.
var CallerContextKey = callerContextKey("caller-context")

// CallerContext identifies who is invoking a tool. SessionID is the invoking
// agent session; SubtaskID is set only for sub-agent sessions whose context
// is a fanned-out subtask.
type CallerContext struct {
	WorkflowID   string `json:"workflowId,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	SubtaskID    string `json:"subtaskId,omitempty"`
	TurnID       string `json:"turnId,omitempty"`
	ProjectRoot  string `json:"projectRoot,omitempty"`
	WorktreePath string `json:"worktreePath,omitempty"`
}

// WithCaller attaches a caller context.
func WithCaller(ctx context.Context, caller *CallerContext) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

// CallerFromContext returns the attached caller context or an empty value so
// that tools can validate required fields uniformly.
func CallerFromContext(ctx context.Context) *CallerContext {
	if v := ctx.Value(CallerContextKey); v != nil {
		if caller, ok := v.(*CallerContext); ok {
			return caller
		}
	}
	return &CallerContext{}
}
