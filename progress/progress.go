// Package progress provides a lightweight tracker that keeps aggregated
// fan-out counters (subtasks total, running, completed, failed) for one
// coordinator session. The tracker instance lives in the dispatch context -
// every component that receives the context can atomically update the
// counters via the Delta helper without requiring a global registry.
package progress

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the dispatcher,
// reconciler or watchdog. The fields are signed and therefore can be either
// positive (increment) or negative (decrement).
type Delta struct {
	Total     int
	Running   int
	Completed int
	Failed    int
}

// Snapshot is a read-only copy of the tracker state.
type Snapshot struct {
	CoordinatorSessionID string
	WorkflowID           string
	StartedAt            time.Time

	TotalSubtasks     int
	RunningSubtasks   int
	CompletedSubtasks int
	FailedSubtasks    int
}

// Settled reports how many subtasks reached a terminal state.
func (s Snapshot) Settled() int {
	return s.CompletedSubtasks + s.FailedSubtasks
}

// Progress keeps aggregated subtask counters for one coordinator session.
// It is safe for concurrent use.
type Progress struct {
	mux      sync.Mutex
	state    Snapshot
	onChange func(Snapshot)
}

// Update applies the supplied delta to the tracker. It is safe to call from
// multiple goroutines. A registered onChange callback is invoked with a copy
// of the updated state outside the critical section so that the callback can
// perform slow operations without blocking engine internals.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.mux.Lock()
	p.state.TotalSubtasks += d.Total
	p.state.RunningSubtasks += d.Running
	p.state.CompletedSubtasks += d.Completed
	p.state.FailedSubtasks += d.Failed

	snapshot := p.state
	cb := p.onChange
	p.mux.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the tracker state suitable for read-only
// inspection.
func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.state
}

// OnChange registers a callback that is invoked after every Update. Passing
// nil disables the callback; only one callback can be active.
func (p *Progress) OnChange(cb func(Snapshot)) {
	if p == nil {
		return
	}
	p.mux.Lock()
	p.onChange = cb
	p.mux.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker creates a new Progress tracker, embeds it in a derived
// context and returns both.
func WithNewTracker(ctx context.Context, coordinatorSessionID, workflowID string, onChange func(Snapshot)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := &Progress{
		state: Snapshot{
			CoordinatorSessionID: coordinatorSessionID,
			WorkflowID:           workflowID,
			StartedAt:            time.Now(),
		},
		onChange: onChange,
	}
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext extracts the Progress tracker from ctx; ok is false when the
// context carries no tracker.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx looks up the tracker in ctx (if any) and applies the delta.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
