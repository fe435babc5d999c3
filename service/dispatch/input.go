package dispatch

import (
	"log"
	"strings"

	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/service/diff"
)

// renderInput builds the initial prompt for one sub-agent. The shared diff is
// filtered down to exactly the files this task was assigned; guidance fields
// are forwarded verbatim.
func renderInput(def *task.Definition, diffText string) string {
	var b strings.Builder
	b.WriteString("# Assignment: " + def.Label + "\n")

	if len(def.Files) > 0 {
		b.WriteString("\n## Files\n")
		for _, file := range def.Files {
			b.WriteString("- " + file + "\n")
		}
	}
	if len(def.FocusAreas) > 0 {
		b.WriteString("\n## Focus Areas\n")
		for _, area := range def.FocusAreas {
			b.WriteString("- " + area + "\n")
		}
	}
	if len(def.GuidingQuestions) > 0 {
		b.WriteString("\n## Guiding Questions\n")
		for _, question := range def.GuidingQuestions {
			b.WriteString("- " + question + "\n")
		}
	}

	b.WriteString("\n## Diff\n")
	b.WriteString(scopedDiff(def, diffText))
	b.WriteString("\n\nReview only the files listed above. When finished, submit your findings " +
		"(summary, concerns, positive observations) as your result.")
	return b.String()
}

func scopedDiff(def *task.Definition, diffText string) string {
	if diffText == diff.Unavailable || len(def.Files) == 0 {
		return diffText
	}
	filtered, err := diff.Filter(diffText, def.Files)
	if err != nil {
		// An unparseable diff cannot be scoped to the assigned files, so
		// degrade rather than hand the sub-agent the whole thing.
		log.Printf("failed to filter diff for task %v: %v", def.Label, err)
		return diff.Unavailable
	}
	if filtered == "" {
		return "(no hunks touch the assigned files)"
	}
	return filtered
}
