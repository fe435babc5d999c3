package diff

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Generate produces a unified diff between two versions of a single file.
// Used by local sources and test fixtures; production diffs come from a
// Source implementation.
func Generate(old, new []byte, path string, contextLines int) (string, error) {
	if path == "" {
		path = "file"
	}
	if contextLines <= 0 {
		contextLines = 3
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(new)),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  contextLines,
	}

	patch, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("diff generation: %w", err)
	}
	if patch == "" {
		return "", nil
	}
	return fmt.Sprintf("diff --git a/%s b/%s\n%s", path, path, patch), nil
}
