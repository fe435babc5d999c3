// Package sqlite provides a SQLite-backed subtask store. Terminal
// transitions run inside one write transaction that performs a guarded
// UPDATE followed by a count of non-terminal siblings, so exactly one
// report per sibling group ever observes AllSettled.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/autarch-dev/autarch/internal/clock"
	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/service/subtask"
)

const schema = `
CREATE TABLE IF NOT EXISTS subtasks (
	id TEXT PRIMARY KEY,
	parent_session_id TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	definition TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	findings TEXT,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME,
	deadline DATETIME
);

CREATE INDEX IF NOT EXISTS idx_subtasks_parent ON subtasks(parent_session_id);
CREATE INDEX IF NOT EXISTS idx_subtasks_status ON subtasks(status);
`

// Store is a SQLite-backed subtask.Store.
type Store struct {
	db *sql.DB
}

// Ensure Store implements subtask.Store.
var _ subtask.Store = (*Store)(nil)

// Open opens (creating if needed) the subtask database at the given DSN.
// Transactions are started as write transactions so the guarded terminal
// UPDATE never deadlocks on lock upgrade.
func Open(dsn string) (*Store, error) {
	if !strings.Contains(dsn, "_txlock=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_txlock=immediate"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtask database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create subtask schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database handle and ensures the schema exists.
func NewWithDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create subtask schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a new subtask record.
func (s *Store) Create(ctx context.Context, st *task.Subtask) error {
	definition, err := json.Marshal(st.Definition)
	if err != nil {
		return fmt.Errorf("failed to encode subtask definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subtasks (id, parent_session_id, workflow_id, definition, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.ParentSessionID, st.WorkflowID, string(definition), string(st.Status), st.Error, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subtask: %w", err)
	}
	return nil
}

// Start moves a pending subtask to running.
func (s *Store) Start(ctx context.Context, id string, deadline *time.Time) error {
	now := clock.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE subtasks SET status = ?, started_at = ?, deadline = ? WHERE id = ? AND status = ?`,
		string(task.StatusRunning), now, deadline, id, string(task.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to start subtask: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return subtask.ErrInvalidTransition
	}
	return nil
}

// Complete records findings and transitions the subtask to completed.
func (s *Store) Complete(ctx context.Context, id string, findings json.RawMessage) (*subtask.Outcome, error) {
	var stored sql.NullString
	if len(findings) > 0 {
		stored = sql.NullString{String: string(findings), Valid: true}
	}
	return s.settle(ctx, id, task.StatusCompleted, stored, "")
}

// Fail records the error and transitions the subtask to failed.
func (s *Store) Fail(ctx context.Context, id string, errMsg string) (*subtask.Outcome, error) {
	return s.settle(ctx, id, task.StatusFailed, sql.NullString{}, errMsg)
}

func (s *Store) settle(ctx context.Context, id string, status task.Status, findings sql.NullString, errMsg string) (*subtask.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := clock.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE subtasks SET status = ?, findings = ?, error = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(status), findings, errMsg, now,
		id, string(task.StatusPending), string(task.StatusRunning),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to settle subtask: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE id = ?`, id)
	model, err := scanSubtask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subtask.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subtask: %w", err)
	}
	snapshot, err := model.toDomain()
	if err != nil {
		return nil, err
	}

	// Already terminal: duplicate or late report, no countdown.
	if affected == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &subtask.Outcome{Transitioned: false, Subtask: snapshot}, nil
	}

	var remaining int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subtasks WHERE parent_session_id = ? AND status NOT IN (?, ?)`,
		snapshot.ParentSessionID, string(task.StatusCompleted), string(task.StatusFailed),
	).Scan(&remaining)
	if err != nil {
		return nil, fmt.Errorf("failed to count outstanding siblings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &subtask.Outcome{
		Transitioned: true,
		AllSettled:   remaining == 0,
		Remaining:    remaining,
		Subtask:      snapshot,
	}, nil
}

// Get returns the subtask by id.
func (s *Store) Get(ctx context.Context, id string) (*task.Subtask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE id = ?`, id)
	model, err := scanSubtask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, subtask.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subtask: %w", err)
	}
	return model.toDomain()
}

// Siblings returns the subtasks of one coordinator session in creation order.
func (s *Store) Siblings(ctx context.Context, parentSessionID string) ([]*task.Subtask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subtaskColumns+` FROM subtasks WHERE parent_session_id = ? ORDER BY created_at, rowid`,
		parentSessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list siblings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collect(rows)
}

// ListRunning returns all running subtasks.
func (s *Store) ListRunning(ctx context.Context) ([]*task.Subtask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subtaskColumns+` FROM subtasks WHERE status = ? ORDER BY created_at, rowid`,
		string(task.StatusRunning),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list running subtasks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*task.Subtask, error) {
	var result []*task.Subtask
	for rows.Next() {
		model, err := scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		st, err := model.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subtasks: %w", err)
	}
	return result, nil
}
