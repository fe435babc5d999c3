// Package subresult exposes result submission as the sub-agent's terminal
// tool call: it settles the calling session's subtask through the fan-in
// reconciler. The findings payload is stored opaque and only re-validated
// when the merger reads it back.
package subresult

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/model/types"
	"github.com/autarch-dev/autarch/service/reconcile"
)

const name = "subresult"

// Service settles the calling sub-agent's subtask.
type Service struct {
	reconciler *reconcile.Service
}

// Input carries the sub-agent's report. Findings fields sit at the top level
// so the tool call shape matches what the merger reads back. A non-empty
// Error settles the subtask as failed instead.
type Input struct {
	task.Findings
	Error string `json:"error,omitempty"`
}

// Output echoes the settled subtask.
type Output struct {
	SubtaskID string `json:"subtaskId"`
	Status    string `json:"status"`
}

// New creates a sub-result service.
func New(reconciler *reconcile.Service) *Service {
	return &Service{reconciler: reconciler}
}

// Name returns the service name
func (s *Service) Name() string {
	return name
}

// Methods returns the service methods
func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name: "submit",
			Description: "Submits this sub-agent's final report: either findings " +
				"(summary, concerns, positive observations) or an error. " +
				"Must be called exactly once before the session ends.",
			Input:  reflect.TypeOf(&Input{}),
			Output: reflect.TypeOf(&Output{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "submit":
		return s.submit, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Service) submit(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	caller := types.CallerFromContext(ctx)
	if caller.SubtaskID == "" {
		return fmt.Errorf("no subtask in context; submit is only available to sub-agent sessions")
	}
	output.SubtaskID = caller.SubtaskID

	if input.Error != "" {
		output.Status = "failed"
		return s.reconciler.Fail(ctx, caller.SubtaskID, input.Error)
	}
	findings, err := json.Marshal(&input.Findings)
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}
	output.Status = "completed"
	return s.reconciler.Complete(ctx, caller.SubtaskID, findings)
}
