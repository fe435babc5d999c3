package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/service/dao/store"
	"github.com/autarch-dev/autarch/service/event"
	"github.com/autarch-dev/autarch/service/merge"
	mmemory "github.com/autarch-dev/autarch/service/messaging/memory"
	"github.com/autarch-dev/autarch/service/reconcile"
	"github.com/autarch-dev/autarch/service/registry"
	smemory "github.com/autarch-dev/autarch/service/subtask/memory"
)

type fixture struct {
	store    *smemory.Store
	watchdog *Service
	runQueue *mmemory.Queue[registry.Run]
	registry *registry.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessionDao := store.NewMemoryStore[string, registry.Session](func(s *registry.Session) string { return s.ID })
	runQueue := mmemory.NewQueue[registry.Run](mmemory.DefaultConfig())
	agent := registry.AgentFunc(func(ctx context.Context, session *registry.Session, input string) (string, error) {
		return "", nil
	})
	reg := registry.New(sessionDao, runQueue, agent)
	subtasks := smemory.New()
	events, err := event.New("memory")
	require.NoError(t, err)
	reconciler := reconcile.New(subtasks, reg, merge.New(subtasks), events)
	return &fixture{
		store:    subtasks,
		watchdog: New(subtasks, reconciler, Config{PollingInterval: 10 * time.Millisecond}),
		runQueue: runQueue,
		registry: reg,
	}
}

func (f *fixture) addRunning(t *testing.T, id string, deadline time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &task.Subtask{
		ID:              id,
		ParentSessionID: "coord-1",
		Definition:      task.Definition{Label: id},
		Status:          task.StatusPending,
		CreatedAt:       time.Now(),
	}))
	require.NoError(t, f.store.Start(ctx, id, &deadline))
}

func TestSweepFailsExpiredSubtasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addRunning(t, "expired", time.Now().Add(-time.Minute))
	f.addRunning(t, "alive", time.Now().Add(time.Hour))

	require.NoError(t, f.watchdog.Sweep(ctx))

	expired, err := f.store.Get(ctx, "expired")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, expired.Status)
	assert.Equal(t, "sub-agent exceeded its liveness deadline", expired.Error)

	alive, err := f.store.Get(ctx, "alive")
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, alive.Status)
}

func TestExpiryOfLastSiblingResumesCoordinator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coordinator, err := f.registry.Start(ctx, registry.ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)

	require.NoError(t, f.store.Create(ctx, &task.Subtask{
		ID:              "sub-1",
		ParentSessionID: coordinator.ID,
		Definition:      task.Definition{Label: "only task"},
		Status:          task.StatusPending,
		CreatedAt:       time.Now(),
	}))
	past := time.Now().Add(-time.Second)
	require.NoError(t, f.store.Start(ctx, "sub-1", &past))

	require.NoError(t, f.watchdog.Sweep(ctx))

	consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	msg, err := f.runQueue.Consume(consumeCtx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, msg.Ack())
	assert.True(t, msg.T().Resume)
	assert.Equal(t, coordinator.ID, msg.T().SessionID)
	assert.Contains(t, msg.T().Input, "## Failed Subtasks")
	assert.Contains(t, msg.T().Input, "- only task: sub-agent exceeded its liveness deadline")
}

func TestStartLoopSweepsUntilShutdown(t *testing.T) {
	f := newFixture(t)
	f.addRunning(t, "expired", time.Now().Add(-time.Minute))

	done := make(chan struct{})
	go func() {
		_ = f.watchdog.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		record, err := f.store.Get(context.Background(), "expired")
		return err == nil && record.Status == task.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	f.watchdog.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop after shutdown")
	}
}
