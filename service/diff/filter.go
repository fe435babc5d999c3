package diff

import (
	"fmt"
	"strings"

	sgdiff "github.com/sourcegraph/go-diff/diff"
)

// Filter returns the subset of the unified diff whose file headers match one
// of the assigned paths exactly. Matching uses the destination (b/) path so
// renames are attributed to their new location; for deletions, where the
// destination is /dev/null, the origin (a/) path is used instead. Matching
// is never by substring - "foo.ts" must not pick up "foo.tsx" hunks.
func Filter(diffText string, files []string) (string, error) {
	if strings.TrimSpace(diffText) == "" || len(files) == 0 {
		return "", nil
	}
	assigned := make(map[string]bool, len(files))
	for _, f := range files {
		assigned[f] = true
	}

	fileDiffs, err := sgdiff.ParseMultiFileDiff([]byte(diffText))
	if err != nil {
		return "", fmt.Errorf("failed to parse diff: %w", err)
	}

	var matched []*sgdiff.FileDiff
	for _, fd := range fileDiffs {
		if assigned[diffPath(fd)] {
			matched = append(matched, fd)
		}
	}
	if len(matched) == 0 {
		return "", nil
	}

	out, err := sgdiff.PrintMultiFileDiff(matched)
	if err != nil {
		return "", fmt.Errorf("failed to print filtered diff: %w", err)
	}
	return string(out), nil
}

// diffPath resolves the path a file diff should be attributed to.
func diffPath(fd *sgdiff.FileDiff) string {
	if name, ok := stripPrefix(fd.NewName, "b/"); ok {
		return name
	}
	if name, ok := stripPrefix(fd.OrigName, "a/"); ok {
		return name
	}
	return fd.NewName
}

func stripPrefix(name, prefix string) (string, bool) {
	if name == "" || name == "/dev/null" {
		return "", false
	}
	return strings.TrimPrefix(name, prefix), true
}
