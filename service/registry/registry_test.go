package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/service/dao/store"
	mmemory "github.com/autarch-dev/autarch/service/messaging/memory"
)

func newRegistry(t *testing.T) (*Service, *mmemory.Queue[Run], *store.MemoryStore[string, Session]) {
	t.Helper()
	sessionDao := store.NewMemoryStore[string, Session](func(s *Session) string { return s.ID })
	runQueue := mmemory.NewQueue[Run](mmemory.DefaultConfig())
	agent := AgentFunc(func(ctx context.Context, session *Session, input string) (string, error) {
		return "ran " + session.ID, nil
	})
	return New(sessionDao, runQueue, agent), runQueue, sessionDao
}

func consumeOne(t *testing.T, queue *mmemory.Queue[Run]) *Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, msg.Ack())
	return msg.T()
}

func TestStartPersistsSession(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()

	session, err := reg.Start(ctx, ContextSubtask, "sub-1", "reviewer", "parent-1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "parent-1", session.ParentSessionID)

	loaded, err := reg.Get(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, ContextSubtask, loaded.ContextType)
	assert.Equal(t, "sub-1", loaded.ContextID)

	_, err = reg.Start(ctx, ContextSubtask, "", "reviewer", "")
	assert.Error(t, err)
}

func TestLaunchQueuesRun(t *testing.T) {
	reg, queue, _ := newRegistry(t)
	ctx := context.Background()

	session, err := reg.Start(ctx, ContextSubtask, "sub-1", "reviewer", "")
	require.NoError(t, err)
	require.NoError(t, reg.Launch(ctx, session.ID, "sub-1", "do the work"))

	run := consumeOne(t, queue)
	assert.Equal(t, session.ID, run.SessionID)
	assert.Equal(t, "sub-1", run.SubtaskID)
	assert.Equal(t, "do the work", run.Input)
	assert.False(t, run.Resume)
}

func TestResumeRequiresSession(t *testing.T) {
	reg, queue, _ := newRegistry(t)
	ctx := context.Background()

	err := reg.Resume(ctx, "missing", "input")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session, err := reg.Start(ctx, ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)
	require.NoError(t, reg.Resume(ctx, session.ID, "merged results"))

	run := consumeOne(t, queue)
	assert.True(t, run.Resume)
	assert.Equal(t, "merged results", run.Input)
}

func TestGetOrRestoreCachesHandle(t *testing.T) {
	reg, _, sessionDao := newRegistry(t)
	ctx := context.Background()

	session, err := reg.Start(ctx, ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)

	handle, err := reg.GetOrRestore(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, handle)

	output, err := handle.Run(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ran "+session.ID, output)

	// The cached handle survives deletion of the record until evicted.
	require.NoError(t, sessionDao.Delete(ctx, session.ID))
	cached, err := reg.GetOrRestore(ctx, session.ID)
	require.NoError(t, err)
	assert.Same(t, handle, cached)

	reg.Evict(session.ID)
	gone, err := reg.GetOrRestore(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestAgentErrorsSurfaceThroughHandle(t *testing.T) {
	sessionDao := store.NewMemoryStore[string, Session](func(s *Session) string { return s.ID })
	runQueue := mmemory.NewQueue[Run](mmemory.DefaultConfig())
	agent := AgentFunc(func(ctx context.Context, session *Session, input string) (string, error) {
		return "", errors.New("model unavailable")
	})
	reg := New(sessionDao, runQueue, agent)
	ctx := context.Background()

	session, err := reg.Start(ctx, ContextWorkflow, "wf-1", "coordinator", "")
	require.NoError(t, err)
	handle, err := reg.GetOrRestore(ctx, session.ID)
	require.NoError(t, err)

	_, err = handle.Run(ctx, "hello")
	assert.EqualError(t, err, "model unavailable")
}
