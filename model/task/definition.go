package task

import "fmt"

// Definition is one unit of fanned-out work: a label, the file subset the
// sub-agent is assigned, plus optional guidance. The coordination engine does
// not interpret guidance fields - they are forwarded verbatim to the
// sub-agent prompt.
type Definition struct {
	Label            string   `json:"label"`
	Files            []string `json:"files,omitempty"`
	FocusAreas       []string `json:"focusAreas,omitempty"`
	GuidingQuestions []string `json:"guidingQuestions,omitempty"`
}

// Validate checks the fields required before any state is mutated.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("task definition is nil")
	}
	if d.Label == "" {
		return fmt.Errorf("task definition requires a label")
	}
	return nil
}
