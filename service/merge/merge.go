// Package merge renders the aggregate report a coordinator session receives
// once every subtask it fanned out has reached a terminal state.
package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/service/subtask"
)

// nextSteps is the fixed closing instruction block appended to every merged
// report.
const nextSteps = `## Next Steps
All sub-agents have finished. For each concern above, decide whether it
warrants a review comment: if so, post one citing the file and line the
concern names, keeping the stated severity. Skip concerns that fall outside
the assigned scope or are already addressed. Failed subtasks produced no
findings; note their absence in your review rather than guessing at their
areas.`

// Service renders merged sub-agent reports.
type Service struct {
	store subtask.Store
}

// New creates a merge service backed by the given subtask store.
func New(store subtask.Store) *Service {
	return &Service{store: store}
}

// Render reads all sibling subtasks of the coordinator session and renders a
// single text report: one labeled section per completed subtask, a failed
// subtasks section, and a fixed next-steps block. Findings payloads are
// decoded leniently so one malformed payload degrades to placeholders
// instead of losing the whole aggregate.
func (s *Service) Render(ctx context.Context, parentSessionID string) (string, error) {
	siblings, err := s.store.Siblings(ctx, parentSessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load subtasks for session %v: %w", parentSessionID, err)
	}
	if len(siblings) == 0 {
		return "", fmt.Errorf("no subtasks recorded for session %v", parentSessionID)
	}

	var completed, failed []*task.Subtask
	for _, sib := range siblings {
		switch sib.Status {
		case task.StatusCompleted:
			completed = append(completed, sib)
		case task.StatusFailed:
			failed = append(failed, sib)
		}
	}

	var b strings.Builder
	b.WriteString("## Sub-Agent Results\n")
	fmt.Fprintf(&b, "%d of %d subtasks completed.\n", len(completed), len(siblings))

	for _, sub := range completed {
		findings := task.DecodeFindings(sub.Findings)
		fmt.Fprintf(&b, "\n### %s\n", sub.Definition.Label)
		fmt.Fprintf(&b, "**Summary:** %s\n", findings.Summary)
		if len(findings.Concerns) > 0 {
			b.WriteString("**Concerns:**\n")
			for _, concern := range findings.Concerns {
				b.WriteString(renderConcern(concern))
			}
		}
		if len(findings.PositiveObservations) > 0 {
			b.WriteString("**Positive observations:**\n")
			for _, obs := range findings.PositiveObservations {
				fmt.Fprintf(&b, "- %s\n", obs)
			}
		}
	}

	if len(failed) > 0 {
		b.WriteString("\n## Failed Subtasks\n")
		for _, sub := range failed {
			reason := sub.Error
			if reason == "" {
				reason = "unknown error"
			}
			fmt.Fprintf(&b, "- %s: %s\n", sub.Definition.Label, reason)
		}
	}

	b.WriteString("\n" + nextSteps + "\n")
	return b.String(), nil
}

func renderConcern(concern task.Concern) string {
	var b strings.Builder
	b.WriteString("- ")
	if concern.Severity != "" {
		fmt.Fprintf(&b, "[%s] ", concern.Severity)
	}
	b.WriteString(concern.Description)
	if concern.File != "" {
		if concern.Line > 0 {
			fmt.Fprintf(&b, " (%s:%d)", concern.File, concern.Line)
		} else {
			fmt.Fprintf(&b, " (%s)", concern.File)
		}
	}
	if concern.Scope != "" {
		fmt.Fprintf(&b, " [scope: %s]", concern.Scope)
	}
	b.WriteString("\n")
	return b.String()
}
