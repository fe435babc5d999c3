package diff

import "context"

// Source produces a unified diff between the workflow's base branch and its
// working branch. The coordination engine treats the returned text as opaque
// - it is only filtered by path before being handed to sub-agents.
type Source interface {
	Diff(ctx context.Context, baseBranch, workBranch string) (string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, baseBranch, workBranch string) (string, error)

func (f SourceFunc) Diff(ctx context.Context, baseBranch, workBranch string) (string, error) {
	return f(ctx, baseBranch, workBranch)
}

// Unavailable is the explicit placeholder dispatched to sub-agents when the
// diff could not be retrieved; fan-out proceeds rather than aborting.
const Unavailable = "(diff unavailable)"
