package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerThroughContext(t *testing.T) {
	ctx, tracker := WithNewTracker(context.Background(), "coord-1", "wf-1", nil)

	UpdateCtx(ctx, Delta{Total: 3})
	UpdateCtx(ctx, Delta{Running: 2})
	UpdateCtx(ctx, Delta{Running: -1, Completed: 1})
	UpdateCtx(ctx, Delta{Running: -1, Failed: 1})

	snapshot := tracker.Snapshot()
	assert.Equal(t, "coord-1", snapshot.CoordinatorSessionID)
	assert.Equal(t, "wf-1", snapshot.WorkflowID)
	assert.Equal(t, 3, snapshot.TotalSubtasks)
	assert.Equal(t, 0, snapshot.RunningSubtasks)
	assert.Equal(t, 1, snapshot.CompletedSubtasks)
	assert.Equal(t, 1, snapshot.FailedSubtasks)
	assert.Equal(t, 2, snapshot.Settled())
}

func TestUpdateWithoutTrackerIsNoOp(t *testing.T) {
	UpdateCtx(context.Background(), Delta{Total: 1})
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	var nilTracker *Progress
	nilTracker.Update(Delta{Total: 1})
	assert.Equal(t, Snapshot{}, nilTracker.Snapshot())
}

func TestOnChangeObservesEveryUpdate(t *testing.T) {
	var observed []Snapshot
	_, tracker := WithNewTracker(context.Background(), "coord-1", "wf-1", func(s Snapshot) {
		observed = append(observed, s)
	})

	tracker.Update(Delta{Total: 2})
	tracker.Update(Delta{Running: 2})
	require.Len(t, observed, 2)
	assert.Equal(t, 2, observed[1].RunningSubtasks)

	tracker.OnChange(nil)
	tracker.Update(Delta{Running: -2, Completed: 2})
	assert.Len(t, observed, 2)
}

func TestConcurrentUpdates(t *testing.T) {
	_, tracker := WithNewTracker(context.Background(), "coord-1", "wf-1", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Update(Delta{Total: 1, Completed: 1})
		}()
	}
	wg.Wait()

	snapshot := tracker.Snapshot()
	assert.Equal(t, 50, snapshot.TotalSubtasks)
	assert.Equal(t, 50, snapshot.Settled())
}
