package diff

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
)

// GitSource retrieves unified diffs by running git in a local worktree. It
// is a thin default collaborator; callers with their own git plumbing supply
// any other Source implementation instead.
type GitSource struct {
	worktree  string
	timeoutMs int

	mux     sync.Mutex
	service *gosh.Service
}

// NewGitSource creates a git-backed diff source rooted at the worktree path.
func NewGitSource(worktree string) *GitSource {
	return &GitSource{
		worktree:  worktree,
		timeoutMs: int((30 * time.Second).Milliseconds()),
	}
}

// Diff runs `git diff base...work` and returns its output verbatim.
func (s *GitSource) Diff(ctx context.Context, baseBranch, workBranch string) (string, error) {
	if baseBranch == "" || workBranch == "" {
		return "", fmt.Errorf("base and work branches are required")
	}
	session, err := s.getSession(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get shell session: %w", err)
	}

	if s.worktree != "" {
		if _, _, err := session.Run(ctx, fmt.Sprintf("cd %s", s.worktree)); err != nil {
			return "", fmt.Errorf("failed to change to worktree: %w", err)
		}
	}

	command := fmt.Sprintf("git diff %s...%s", baseBranch, workBranch)
	stdout, status, err := session.Run(ctx, command, runner.WithTimeout(s.timeoutMs))
	if err != nil {
		return "", fmt.Errorf("git diff failed: %w", err)
	}
	if status != 0 {
		return "", fmt.Errorf("git diff exited with status %d: %s", status, stdout)
	}
	return stdout, nil
}

func (s *GitSource) getSession(ctx context.Context) (*gosh.Service, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.service != nil {
		return s.service, nil
	}
	service, err := gosh.New(ctx, local.New())
	if err != nil {
		return nil, err
	}
	s.service = service
	return service, nil
}
