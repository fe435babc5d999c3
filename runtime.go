package autarch

import (
	"context"
	"fmt"

	"github.com/autarch-dev/autarch/internal/clock"
	"github.com/autarch-dev/autarch/internal/idgen"
	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/model/types"
	"github.com/autarch-dev/autarch/model/workflow"
	"github.com/autarch-dev/autarch/policy"
	"github.com/autarch-dev/autarch/service/dao"
	"github.com/autarch-dev/autarch/service/dispatch"
	"github.com/autarch-dev/autarch/service/event"
	"github.com/autarch-dev/autarch/service/gate"
	"github.com/autarch-dev/autarch/service/invoker"
	"github.com/autarch-dev/autarch/service/merge"
	"github.com/autarch-dev/autarch/service/reconcile"
	"github.com/autarch-dev/autarch/service/registry"
	"github.com/autarch-dev/autarch/service/runner"
	"github.com/autarch-dev/autarch/service/subtask"
	"github.com/autarch-dev/autarch/service/watchdog"
)

// Runtime is the wired coordination engine: workflows, sessions, fan-out and
// fan-in, behind a single facade.
type Runtime struct {
	registry   *registry.Service
	merger     *merge.Service
	reconciler *reconcile.Service
	dispatcher *dispatch.Service
	gate       *gate.Service
	runner     *runner.Service
	watchdog   *watchdog.Service
	invoker    *invoker.Service

	workflowDao  dao.Service[string, workflow.Workflow]
	artifactDao  dao.Service[string, workflow.Artifact]
	subtaskStore subtask.Store
	events       *event.Service
	policy       *policy.Config
}

// Start launches the background services: the run workers that execute
// queued session deliveries and the watchdog that expires hung subtasks.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.runner.Start(ctx); err != nil {
		return err
	}
	go func() { _ = r.watchdog.Start(ctx) }()
	return nil
}

// Shutdown stops background services and waits for in-flight runs.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.watchdog.Shutdown()
	r.runner.Shutdown()
	return nil
}

// CreateWorkflow persists a new workflow in the backlog stage.
func (r *Runtime) CreateWorkflow(ctx context.Context, baseBranch, workBranch string) (*workflow.Workflow, error) {
	flow := workflow.New(idgen.New(), clock.Now())
	flow.BaseBranch = baseBranch
	flow.WorkBranch = workBranch
	if err := r.workflowDao.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}
	return flow, nil
}

// StartWorkflow moves a backlog workflow into its first active stage.
func (r *Runtime) StartWorkflow(ctx context.Context, workflowID string) error {
	_, err := r.gate.Submit(r.withPolicy(ctx), workflowID, "workflow.started", "")
	return err
}

// SubmitStage applies a stage-completion event; gated events return the
// pending (or policy-decided) artifact.
func (r *Runtime) SubmitStage(ctx context.Context, workflowID, completionEvent, content string) (*workflow.Artifact, error) {
	return r.gate.Submit(r.withPolicy(ctx), workflowID, completionEvent, content)
}

// DecideArtifact records a human approval or denial.
func (r *Runtime) DecideArtifact(ctx context.Context, artifactID string, approved bool, reason string) (*workflow.Artifact, error) {
	return r.gate.Decide(ctx, artifactID, approved, reason)
}

// SkipStage bypasses a future stage via the fast path.
func (r *Runtime) SkipStage(ctx context.Context, workflowID string, stage workflow.Status) error {
	return r.gate.SkipStage(ctx, workflowID, stage)
}

// Workflow returns the workflow record, or nil when absent.
func (r *Runtime) Workflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	return r.workflowDao.Load(ctx, id)
}

// Artifact returns the artifact record, or nil when absent.
func (r *Runtime) Artifact(ctx context.Context, id string) (*workflow.Artifact, error) {
	return r.artifactDao.Load(ctx, id)
}

// Subtask returns the subtask record.
func (r *Runtime) Subtask(ctx context.Context, id string) (*task.Subtask, error) {
	return r.subtaskStore.Get(ctx, id)
}

// Subtasks returns all subtasks spawned by the coordinator session.
func (r *Runtime) Subtasks(ctx context.Context, parentSessionID string) ([]*task.Subtask, error) {
	return r.subtaskStore.Siblings(ctx, parentSessionID)
}

// StartSession creates a session record bound to the given context.
func (r *Runtime) StartSession(ctx context.Context, contextType registry.ContextType, contextID, agentRole, parentSessionID string) (*registry.Session, error) {
	return r.registry.Start(ctx, contextType, contextID, agentRole, parentSessionID)
}

// Invoke executes a registered tool call with the runtime policy applied.
func (r *Runtime) Invoke(ctx context.Context, service, method string, args map[string]interface{}) (*types.Result, error) {
	return r.invoker.Invoke(r.withPolicy(ctx), service, method, args)
}

func (r *Runtime) withPolicy(ctx context.Context) context.Context {
	if p := policy.FromContext(ctx); p != nil {
		return ctx
	}
	return policy.WithPolicy(ctx, policy.FromConfig(r.policy))
}

// Registry returns the session registry.
func (r *Runtime) Registry() *registry.Service { return r.registry }

// Dispatcher returns the fan-out dispatcher.
func (r *Runtime) Dispatcher() *dispatch.Service { return r.dispatcher }

// Reconciler returns the fan-in reconciler.
func (r *Runtime) Reconciler() *reconcile.Service { return r.reconciler }

// Merger returns the result merger.
func (r *Runtime) Merger() *merge.Service { return r.merger }

// Gate returns the stage gate service.
func (r *Runtime) Gate() *gate.Service { return r.gate }

// Events returns the coordination event service.
func (r *Runtime) Events() *event.Service { return r.events }

// SubtaskStore returns the subtask store.
func (r *Runtime) SubtaskStore() subtask.Store { return r.subtaskStore }
