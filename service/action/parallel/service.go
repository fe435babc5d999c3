// Package parallel exposes the fan-out dispatcher as an agent tool: a
// coordinator session calls it to split its work across sub-agent sessions
// and is resumed once all of them have finished.
package parallel

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/model/types"
	"github.com/autarch-dev/autarch/model/workflow"
	"github.com/autarch-dev/autarch/service/dao"
	"github.com/autarch-dev/autarch/service/dispatch"
)

const name = "parallel"

// defaultAgentRole is assigned to spawned sub-agents unless the caller
// names another role.
const defaultAgentRole = "reviewer"

// Service spawns parallel sub-agent tasks.
type Service struct {
	dispatcher  *dispatch.Service
	workflowDao dao.Service[string, workflow.Workflow]
}

// Input lists the tasks to fan out. The coordinator session and workflow are
// taken from the caller context, never from the tool arguments.
type Input struct {
	Tasks     []task.Definition `json:"tasks"`
	AgentRole string            `json:"agentRole,omitempty"`
}

// Output reports the spawned subtasks.
type Output struct {
	SubtaskIDs []string `json:"subtaskIds"`
	Count      int      `json:"count"`
}

// New creates a parallel task service.
func New(dispatcher *dispatch.Service, workflowDao dao.Service[string, workflow.Workflow]) *Service {
	return &Service{dispatcher: dispatcher, workflowDao: workflowDao}
}

// Name returns the service name
func (s *Service) Name() string {
	return name
}

// Methods returns the service methods
func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name: "spawn",
			Description: "Splits the current assignment into parallel sub-agent tasks. " +
				"Each task gets a label, an exact file list and optional guidance; " +
				"the caller is resumed with the merged findings once every task finishes.",
			Input:  reflect.TypeOf(&Input{}),
			Output: reflect.TypeOf(&Output{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "spawn":
		return s.spawn, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Service) spawn(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	caller := types.CallerFromContext(ctx)
	if caller.SessionID == "" {
		return fmt.Errorf("no caller session in context")
	}
	if caller.WorkflowID == "" {
		return fmt.Errorf("no workflow in context")
	}

	flow, err := s.workflowDao.Load(ctx, caller.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %v: %w", caller.WorkflowID, err)
	}
	if flow == nil {
		return fmt.Errorf("workflow %v not found", caller.WorkflowID)
	}

	agentRole := input.AgentRole
	if agentRole == "" {
		agentRole = defaultAgentRole
	}
	subtaskIDs, err := s.dispatcher.Dispatch(ctx, &dispatch.Request{
		ParentSessionID: caller.SessionID,
		WorkflowID:      caller.WorkflowID,
		AgentRole:       agentRole,
		BaseBranch:      flow.BaseBranch,
		WorkBranch:      flow.WorkBranch,
		Tasks:           input.Tasks,
	})
	if err != nil {
		return err
	}
	output.SubtaskIDs = subtaskIDs
	output.Count = len(subtaskIDs)
	return nil
}
