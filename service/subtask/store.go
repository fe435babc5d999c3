package subtask

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/autarch-dev/autarch/model/task"
)

var (
	// ErrNotFound is returned when the subtask id is unknown.
	ErrNotFound = errors.New("subtask: not found")
	// ErrInvalidTransition is returned for non-monotonic lifecycle moves
	// other than duplicate terminal reports (which are reported via
	// Outcome.Transitioned=false).
	ErrInvalidTransition = errors.New("subtask: invalid transition")
)

// Outcome is the result of a terminal transition attempt. The write of the
// terminal status and the count of non-terminal siblings happen in one
// atomic step, so exactly one caller per sibling group ever observes
// AllSettled=true.
//
// Transitioned is false when the subtask was already terminal: a duplicate
// or late report. Such calls must be treated as no-ops - in particular they
// never carry AllSettled=true, so they can never re-trigger a merge.
type Outcome struct {
	Transitioned bool
	AllSettled   bool
	Remaining    int
	Subtask      *task.Subtask
}

// Store persists fanned-out subtasks. Complete and Fail are the only
// concurrency-critical mutators: implementations must make the terminal
// write and the sibling count indivisible from the perspective of other
// concurrent callers on the same parent session.
type Store interface {
	// Create persists a new subtask in pending status.
	Create(ctx context.Context, subtask *task.Subtask) error

	// Start transitions pending -> running and records the liveness
	// deadline. Single writer (the dispatcher), not concurrency-critical.
	Start(ctx context.Context, id string, deadline *time.Time) error

	// Complete atomically transitions the subtask to completed with the
	// given findings and reports whether all siblings are now terminal.
	Complete(ctx context.Context, id string, findings json.RawMessage) (*Outcome, error)

	// Fail atomically transitions the subtask to failed with the given
	// error and reports whether all siblings are now terminal.
	Fail(ctx context.Context, id string, errMsg string) (*Outcome, error)

	// Get returns the subtask by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*task.Subtask, error)

	// Siblings returns every subtask spawned by the given coordinator
	// session, in creation order.
	Siblings(ctx context.Context, parentSessionID string) ([]*task.Subtask, error)

	// ListRunning returns all running subtasks across coordinators; used by
	// the liveness watchdog.
	ListRunning(ctx context.Context) ([]*task.Subtask, error)
}
