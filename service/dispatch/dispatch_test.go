package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/service/dao/store"
	"github.com/autarch-dev/autarch/service/diff"
	"github.com/autarch-dev/autarch/service/event"
	"github.com/autarch-dev/autarch/service/merge"
	"github.com/autarch-dev/autarch/service/messaging"
	mmemory "github.com/autarch-dev/autarch/service/messaging/memory"
	"github.com/autarch-dev/autarch/service/reconcile"
	"github.com/autarch-dev/autarch/service/registry"
	smemory "github.com/autarch-dev/autarch/service/subtask/memory"
)

const testDiff = `diff --git a/src/foo.ts b/src/foo.ts
--- a/src/foo.ts
+++ b/src/foo.ts
@@ -1,1 +1,1 @@
-const a = 1;
+const a = 2;
diff --git a/src/foo.tsx b/src/foo.tsx
--- a/src/foo.tsx
+++ b/src/foo.tsx
@@ -1,1 +1,1 @@
-old view
+new view
`

// launchFailingQueue rejects sub-agent launches while letting coordinator
// resumes through, simulating a dispatch-side failure.
type launchFailingQueue struct {
	messaging.Queue[registry.Run]
}

func (q *launchFailingQueue) Publish(ctx context.Context, run *registry.Run) error {
	if !run.Resume {
		return fmt.Errorf("broker unavailable")
	}
	return q.Queue.Publish(ctx, run)
}

type fixture struct {
	store      *smemory.Store
	registry   *registry.Service
	reconciler *reconcile.Service
	runQueue   messaging.Queue[registry.Run]
	events     *event.Service
}

func newFixture(t *testing.T, queue messaging.Queue[registry.Run], source diff.Source) (*fixture, *Service) {
	t.Helper()
	sessionDao := store.NewMemoryStore[string, registry.Session](func(s *registry.Session) string { return s.ID })
	agent := registry.AgentFunc(func(ctx context.Context, session *registry.Session, input string) (string, error) {
		return "", nil
	})
	reg := registry.New(sessionDao, queue, agent)
	subtasks := smemory.New()
	events, err := event.New("memory")
	require.NoError(t, err)
	reconciler := reconcile.New(subtasks, reg, merge.New(subtasks), events)
	f := &fixture{store: subtasks, registry: reg, reconciler: reconciler, runQueue: queue, events: events}
	return f, New(subtasks, reg, reconciler, source, events)
}

func (f *fixture) drain(t *testing.T) []*registry.Run {
	t.Helper()
	var runs []*registry.Run
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		msg, err := f.runQueue.Consume(ctx)
		cancel()
		if err != nil || msg == nil {
			return runs
		}
		require.NoError(t, msg.Ack())
		runs = append(runs, msg.T())
	}
}

func staticDiff(text string) diff.Source {
	return diff.SourceFunc(func(ctx context.Context, base, work string) (string, error) {
		return text, nil
	})
}

func request(coordinatorID string, tasks ...task.Definition) *Request {
	return &Request{
		ParentSessionID: coordinatorID,
		WorkflowID:      "wf-1",
		AgentRole:       "reviewer",
		BaseBranch:      "main",
		WorkBranch:      "feature/x",
		Tasks:           tasks,
	}
}

func TestDispatchFansOut(t *testing.T) {
	queue := mmemory.NewQueue[registry.Run](mmemory.DefaultConfig())
	f, dispatcher := newFixture(t, queue, staticDiff(testDiff))
	ctx := context.Background()
	coordinator, err := f.registry.Start(ctx, registry.ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)

	ids, err := dispatcher.Dispatch(ctx, request(coordinator.ID,
		task.Definition{Label: "typescript", Files: []string{"src/foo.ts"}},
		task.Definition{Label: "views", Files: []string{"src/foo.tsx"}, FocusAreas: []string{"rendering"}},
	))
	require.NoError(t, err)
	require.Len(t, ids, 2)

	for _, id := range ids {
		record, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, task.StatusRunning, record.Status)
		assert.Equal(t, coordinator.ID, record.ParentSessionID)
		assert.NotNil(t, record.Deadline)
	}

	runs := f.drain(t)
	require.Len(t, runs, 2)
	bySubtask := map[string]*registry.Run{}
	for _, run := range runs {
		assert.False(t, run.Resume)
		bySubtask[run.SubtaskID] = run
		session, err := f.registry.Get(ctx, run.SessionID)
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.Equal(t, registry.ContextSubtask, session.ContextType)
		assert.Equal(t, coordinator.ID, session.ParentSessionID)
	}

	tsRun := bySubtask[ids[0]]
	require.NotNil(t, tsRun)
	assert.Contains(t, tsRun.Input, "# Assignment: typescript")
	assert.Contains(t, tsRun.Input, "+const a = 2;")
	assert.NotContains(t, tsRun.Input, "new view")

	tsxRun := bySubtask[ids[1]]
	require.NotNil(t, tsxRun)
	assert.Contains(t, tsxRun.Input, "new view")
	assert.Contains(t, tsxRun.Input, "## Focus Areas")
	assert.NotContains(t, tsxRun.Input, "const a")
}

func TestDispatchDiffFailureDegrades(t *testing.T) {
	queue := mmemory.NewQueue[registry.Run](mmemory.DefaultConfig())
	failing := diff.SourceFunc(func(ctx context.Context, base, work string) (string, error) {
		return "", fmt.Errorf("git unavailable")
	})
	f, dispatcher := newFixture(t, queue, failing)
	ctx := context.Background()
	coordinator, err := f.registry.Start(ctx, registry.ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(ctx, request(coordinator.ID, task.Definition{Label: "solo"}))
	require.NoError(t, err)

	runs := f.drain(t)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Input, diff.Unavailable)
}

func TestDispatchUnparseableDiffDegrades(t *testing.T) {
	malformed := `diff --git a/src/foo.ts b/src/foo.ts
--- a/src/foo.ts
+++ b/src/foo.ts
@@ not a hunk header @@
+const secret = "do not leak";
`
	queue := mmemory.NewQueue[registry.Run](mmemory.DefaultConfig())
	f, dispatcher := newFixture(t, queue, staticDiff(malformed))
	ctx := context.Background()
	coordinator, err := f.registry.Start(ctx, registry.ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(ctx, request(coordinator.ID,
		task.Definition{Label: "typescript", Files: []string{"src/foo.ts"}}))
	require.NoError(t, err)

	runs := f.drain(t)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Input, diff.Unavailable)
	assert.NotContains(t, runs[0].Input, "do not leak")
}

func TestDispatchLaunchFailureStillResumes(t *testing.T) {
	queue := &launchFailingQueue{Queue: mmemory.NewQueue[registry.Run](mmemory.DefaultConfig())}
	f, dispatcher := newFixture(t, queue, staticDiff(testDiff))
	ctx := context.Background()
	coordinator, err := f.registry.Start(ctx, registry.ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)

	ids, err := dispatcher.Dispatch(ctx, request(coordinator.ID, task.Definition{Label: "solo"}))
	require.NoError(t, err)
	require.Len(t, ids, 1)

	record, err := f.store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, record.Status)
	assert.Contains(t, record.Error, "broker unavailable")

	runs := f.drain(t)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Resume)
	assert.Equal(t, coordinator.ID, runs[0].SessionID)
	assert.Contains(t, runs[0].Input, "## Failed Subtasks")
}

func TestDispatchValidation(t *testing.T) {
	queue := mmemory.NewQueue[registry.Run](mmemory.DefaultConfig())
	f, dispatcher := newFixture(t, queue, staticDiff(testDiff))
	ctx := context.Background()

	_, err := dispatcher.Dispatch(ctx, request("unknown-session", task.Definition{Label: "x"}))
	assert.ErrorIs(t, err, registry.ErrSessionNotFound)

	coordinator, err := f.registry.Start(ctx, registry.ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(ctx, request(coordinator.ID))
	assert.Error(t, err)

	_, err = dispatcher.Dispatch(ctx, request(coordinator.ID, task.Definition{}))
	assert.Error(t, err)

	_, err = dispatcher.Dispatch(ctx, &Request{WorkflowID: "wf-1", Tasks: []task.Definition{{Label: "x"}}})
	assert.Error(t, err)
}
