package merge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/service/subtask/memory"
)

func settle(t *testing.T, store *memory.Store, st *task.Subtask, findings string, errMsg string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, st))
	if errMsg != "" {
		_, err := store.Fail(ctx, st.ID, errMsg)
		require.NoError(t, err)
		return
	}
	_, err := store.Complete(ctx, st.ID, json.RawMessage(findings))
	require.NoError(t, err)
}

func TestRenderMergedReport(t *testing.T) {
	store := memory.New()
	now := time.Now()
	settle(t, store, &task.Subtask{
		ID: "s1", ParentSessionID: "coord", WorkflowID: "wf",
		Definition: task.Definition{Label: "Auth layer"}, Status: task.StatusPending, CreatedAt: now,
	}, `{"summary":"auth looks solid","concerns":[{"severity":"high","description":"token not revoked","file":"auth.go","line":10,"scope":"in-scope"}],"positiveObservations":["good test coverage"]}`, "")
	settle(t, store, &task.Subtask{
		ID: "s2", ParentSessionID: "coord", WorkflowID: "wf",
		Definition: task.Definition{Label: "Storage layer"}, Status: task.StatusPending, CreatedAt: now,
	}, `{"summary":"storage fine"}`, "")
	settle(t, store, &task.Subtask{
		ID: "s3", ParentSessionID: "coord", WorkflowID: "wf",
		Definition: task.Definition{Label: "API layer"}, Status: task.StatusPending, CreatedAt: now,
	}, "", "timeout")

	report, err := New(store).Render(context.Background(), "coord")
	require.NoError(t, err)

	assert.Contains(t, report, "### Auth layer")
	assert.Contains(t, report, "### Storage layer")
	assert.Contains(t, report, "2 of 3 subtasks completed")
	assert.Contains(t, report, "[high] token not revoked (auth.go:10) [scope: in-scope]")
	assert.Contains(t, report, "good test coverage")

	assert.Contains(t, report, "## Failed Subtasks")
	assert.Contains(t, report, "- API layer: timeout")
	assert.NotContains(t, report, "### API layer")

	assert.Contains(t, report, "## Next Steps")
	// Labeled sections plus failures always account for every subtask.
	sections := strings.Count(report, "\n### ")
	failures := strings.Count(report, "\n- API layer")
	assert.Equal(t, 3, sections+failures)
}

func TestRenderLenientFindings(t *testing.T) {
	store := memory.New()
	settle(t, store, &task.Subtask{
		ID: "s1", ParentSessionID: "coord", WorkflowID: "wf",
		Definition: task.Definition{Label: "Broken payload"}, Status: task.StatusPending, CreatedAt: time.Now(),
	}, `{"concerns":[{}],"unknownField":1}`, "")

	report, err := New(store).Render(context.Background(), "coord")
	require.NoError(t, err)
	assert.Contains(t, report, task.NoSummary)
	assert.Contains(t, report, task.NoDescription)
}

func TestRenderUnknownCoordinator(t *testing.T) {
	store := memory.New()
	_, err := New(store).Render(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestRenderFailureWithoutReason(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Create(ctx, &task.Subtask{
		ID: "s1", ParentSessionID: "coord", WorkflowID: "wf",
		Definition: task.Definition{Label: "Mystery"}, Status: task.StatusPending, CreatedAt: time.Now(),
	}))
	_, err := store.Fail(ctx, "s1", "")
	require.NoError(t, err)

	report, err := New(store).Render(ctx, "coord")
	require.NoError(t, err)
	assert.Contains(t, report, "- Mystery: unknown error")
}
