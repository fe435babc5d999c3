package task

import (
	"encoding/json"

	"github.com/viant/structology/conv"
)

// Findings is a sub-agent's structured report. The payload is stored opaque
// and only introspected at the merge boundary; every field is optional so a
// partial or malformed payload degrades to placeholders instead of failing
// the whole merge.
type Findings struct {
	Summary              string    `json:"summary,omitempty"`
	Concerns             []Concern `json:"concerns,omitempty"`
	PositiveObservations []string  `json:"positiveObservations,omitempty"`
}

// Concern is a single issue raised by a sub-agent.
type Concern struct {
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description,omitempty"`
	Scope       string `json:"scope,omitempty"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
}

const (
	// NoSummary substitutes a missing summary at merge time.
	NoSummary = "no summary provided"
	// NoDescription substitutes a missing concern description at merge time.
	NoDescription = "no description"
)

var converter = func() *conv.Converter {
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	return conv.NewConverter(options)
}()

// DecodeFindings re-validates an opaque findings payload leniently. Unknown
// fields are ignored, missing fields default to safe placeholders, and a
// payload that cannot be decoded at all yields placeholder findings rather
// than an error.
func DecodeFindings(raw json.RawMessage) *Findings {
	ret := &Findings{}
	if len(raw) > 0 {
		var loose map[string]interface{}
		if err := json.Unmarshal(raw, &loose); err == nil {
			_ = converter.Convert(loose, ret)
		}
	}
	if ret.Summary == "" {
		ret.Summary = NoSummary
	}
	for i := range ret.Concerns {
		if ret.Concerns[i].Description == "" {
			ret.Concerns[i].Description = NoDescription
		}
	}
	return ret
}
