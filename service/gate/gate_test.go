package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/internal/clock"
	"github.com/autarch-dev/autarch/internal/idgen"
	"github.com/autarch-dev/autarch/model/workflow"
	"github.com/autarch-dev/autarch/policy"
	"github.com/autarch-dev/autarch/service/dao"
	"github.com/autarch-dev/autarch/service/dao/store"
	"github.com/autarch-dev/autarch/service/event"
)

func newService(t *testing.T) (*Service, dao.Service[string, workflow.Workflow]) {
	t.Helper()
	workflowDao := store.NewMemoryStore[string, workflow.Workflow](func(w *workflow.Workflow) string { return w.ID })
	artifactDao := store.NewMemoryStore[string, workflow.Artifact](func(a *workflow.Artifact) string { return a.ID })
	events, err := event.New("memory")
	require.NoError(t, err)
	return New(workflowDao, artifactDao, events), workflowDao
}

func createWorkflow(t *testing.T, workflowDao dao.Service[string, workflow.Workflow], status workflow.Status) *workflow.Workflow {
	t.Helper()
	flow := workflow.New(idgen.New(), clock.Now())
	flow.Status = status
	require.NoError(t, workflowDao.Save(context.Background(), flow))
	return flow
}

func TestSubmitAutoEventAdvances(t *testing.T) {
	svc, workflowDao := newService(t)
	flow := createWorkflow(t, workflowDao, workflow.StatusBacklog)
	ctx := context.Background()

	artifact, err := svc.Submit(ctx, flow.ID, "workflow.started", "")
	require.NoError(t, err)
	assert.Nil(t, artifact)

	updated, err := workflowDao.Load(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusScoping, updated.Status)
	assert.False(t, updated.AwaitingApproval)
}

func TestSubmitGatedEventParksWorkflow(t *testing.T) {
	svc, workflowDao := newService(t)
	flow := createWorkflow(t, workflowDao, workflow.StatusScoping)
	ctx := context.Background()

	artifact, err := svc.Submit(ctx, flow.ID, "scope.submitted", "## Scope\ndo the thing")
	require.NoError(t, err)
	require.NotNil(t, artifact)
	assert.Equal(t, workflow.ArtifactScopeCard, artifact.Type)
	assert.Equal(t, workflow.ArtifactPending, artifact.Status)

	updated, err := workflowDao.Load(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusScoping, updated.Status)
	assert.True(t, updated.AwaitingApproval)
	assert.Equal(t, workflow.ArtifactScopeCard, updated.PendingArtifact)

	// A second submission while parked is rejected.
	_, err = svc.Submit(ctx, flow.ID, "scope.submitted", "again")
	assert.Error(t, err)
}

func TestDecideApprovalAdvances(t *testing.T) {
	svc, workflowDao := newService(t)
	flow := createWorkflow(t, workflowDao, workflow.StatusScoping)
	ctx := context.Background()

	artifact, err := svc.Submit(ctx, flow.ID, "scope.submitted", "scope")
	require.NoError(t, err)

	decided, err := svc.Decide(ctx, artifact.ID, true, "looks good")
	require.NoError(t, err)
	assert.Equal(t, workflow.ArtifactApproved, decided.Status)
	assert.NotNil(t, decided.DecidedAt)

	updated, err := workflowDao.Load(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusResearching, updated.Status)
	assert.False(t, updated.AwaitingApproval)

	// Deciding an already-decided artifact is a conflict.
	_, err = svc.Decide(ctx, artifact.ID, false, "changed my mind")
	assert.Error(t, err)
}

func TestDecideDenialKeepsStage(t *testing.T) {
	svc, workflowDao := newService(t)
	flow := createWorkflow(t, workflowDao, workflow.StatusPlanning)
	ctx := context.Background()

	artifact, err := svc.Submit(ctx, flow.ID, "plan.submitted", "plan")
	require.NoError(t, err)

	decided, err := svc.Decide(ctx, artifact.ID, false, "needs more detail")
	require.NoError(t, err)
	assert.Equal(t, workflow.ArtifactDenied, decided.Status)
	assert.Equal(t, "needs more detail", decided.Reason)

	updated, err := workflowDao.Load(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPlanning, updated.Status)
	assert.False(t, updated.AwaitingApproval)

	// The agent can resubmit after rework.
	_, err = svc.Submit(ctx, flow.ID, "plan.submitted", "plan v2")
	assert.NoError(t, err)
}

func TestPolicyAutoApproval(t *testing.T) {
	svc, workflowDao := newService(t)
	flow := createWorkflow(t, workflowDao, workflow.StatusScoping)
	ctx := policy.WithPolicy(context.Background(), &policy.Policy{Mode: policy.ModeAuto})

	artifact, err := svc.Submit(ctx, flow.ID, "scope.submitted", "scope")
	require.NoError(t, err)
	assert.Equal(t, workflow.ArtifactApproved, artifact.Status)
	assert.Equal(t, autoDecisionReason, artifact.Reason)

	updated, err := workflowDao.Load(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusResearching, updated.Status)
}

func TestPolicyHoldWins(t *testing.T) {
	svc, workflowDao := newService(t)
	flow := createWorkflow(t, workflowDao, workflow.StatusScoping)
	ctx := policy.WithPolicy(context.Background(), &policy.Policy{
		Mode: policy.ModeAuto,
		Hold: []string{string(workflow.ArtifactScopeCard)},
	})

	artifact, err := svc.Submit(ctx, flow.ID, "scope.submitted", "scope")
	require.NoError(t, err)
	assert.Equal(t, workflow.ArtifactPending, artifact.Status)

	updated, err := workflowDao.Load(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.True(t, updated.AwaitingApproval)
}

func TestSkipStage(t *testing.T) {
	svc, workflowDao := newService(t)
	flow := createWorkflow(t, workflowDao, workflow.StatusScoping)
	ctx := context.Background()

	require.NoError(t, svc.SkipStage(ctx, flow.ID, workflow.StatusResearching))
	assert.Error(t, svc.SkipStage(ctx, flow.ID, workflow.StatusBacklog))
	assert.Error(t, svc.SkipStage(ctx, flow.ID, workflow.Status("bogus")))

	artifact, err := svc.Submit(ctx, flow.ID, "scope.submitted", "scope")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, artifact.ID, true, "")
	require.NoError(t, err)

	updated, err := workflowDao.Load(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPlanning, updated.Status)
}

func TestSubmitUnknownWorkflow(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Submit(context.Background(), "missing", "scope.submitted", "x")
	assert.Error(t, err)
}
