// Package policy provides an optional approval-mode layer attached to a
// workflow run via context. It is deliberately decoupled from the rest of
// the engine so that using it is entirely opt-in - callers that do not embed
// a Policy in their context keep the default "ask" behaviour where every
// produced artifact awaits a human decision.

package policy

import (
	"context"
	"strings"
)

// Approval modes recognised by the gate service.
const (
	ModeAsk  = "ask"  // every artifact awaits a human decision (default)
	ModeAuto = "auto" // artifacts are approved automatically (fast path)
)

// Policy represents the approval settings for the current workflow run.
//
//   - Mode controls the high-level behaviour (ask / auto).
//   - AutoApprove lists artifact types approved automatically regardless of
//     Mode; Hold lists artifact types that always await a decision.
//
// A nil *Policy means "ask for everything" and is therefore the zero-cost
// default.
type Policy struct {
	Mode        string
	AutoApprove []string
	Hold        []string
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode        string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AutoApprove []string `json:"autoApprove,omitempty" yaml:"autoApprove,omitempty"`
	Hold        []string `json:"hold,omitempty" yaml:"hold,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:        p.Mode,
		AutoApprove: append([]string(nil), p.AutoApprove...),
		Hold:        append([]string(nil), p.Hold...),
	}
}

// FromConfig converts a stored Config back to a runtime Policy.
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:        c.Mode,
		AutoApprove: append([]string(nil), c.AutoApprove...),
		Hold:        append([]string(nil), c.Hold...),
	}
}

// AutoApproves reports whether an artifact of the given type should be
// approved without a human decision. Hold wins over AutoApprove; both lists
// match by case-insensitive comparison of the artifact type name.
func (p *Policy) AutoApproves(artifactType string) bool {
	if p == nil {
		return false
	}
	for _, held := range p.Hold {
		if strings.EqualFold(held, artifactType) {
			return false
		}
	}
	for _, auto := range p.AutoApprove {
		if strings.EqualFold(auto, artifactType) {
			return true
		}
	}
	return strings.EqualFold(p.Mode, ModeAuto)
}

type policyKey string

const contextKey = policyKey("approval-policy")

// WithPolicy attaches the policy to the context.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey, p)
}

// FromContext returns the policy attached to the context, or nil.
func FromContext(ctx context.Context) *Policy {
	if v := ctx.Value(contextKey); v != nil {
		if p, ok := v.(*Policy); ok {
			return p
		}
	}
	return nil
}
