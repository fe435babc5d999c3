package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/autarch-dev/autarch/model/task"
)

// subtaskColumns is the list of columns to select for subtask queries.
const subtaskColumns = `id, parent_session_id, workflow_id, definition, status,
	findings, error, created_at, started_at, completed_at, deadline`

// subtaskModel is the database representation of a subtask row.
type subtaskModel struct {
	ID              string
	ParentSessionID string
	WorkflowID      string
	Definition      string
	Status          string
	Findings        sql.NullString
	Error           string
	CreatedAt       sql.NullTime
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
	Deadline        sql.NullTime
}

// scanSubtask scans a row into a subtaskModel.
func scanSubtask(scanner interface{ Scan(...any) error }) (*subtaskModel, error) {
	var model subtaskModel
	err := scanner.Scan(
		&model.ID, &model.ParentSessionID, &model.WorkflowID,
		&model.Definition, &model.Status, &model.Findings, &model.Error,
		&model.CreatedAt, &model.StartedAt, &model.CompletedAt, &model.Deadline,
	)
	return &model, err
}

func (m *subtaskModel) toDomain() (*task.Subtask, error) {
	var def task.Definition
	if err := json.Unmarshal([]byte(m.Definition), &def); err != nil {
		return nil, fmt.Errorf("failed to decode subtask definition: %w", err)
	}
	result := &task.Subtask{
		ID:              m.ID,
		ParentSessionID: m.ParentSessionID,
		WorkflowID:      m.WorkflowID,
		Definition:      def,
		Status:          task.Status(m.Status),
		Error:           m.Error,
	}
	if m.Findings.Valid {
		result.Findings = json.RawMessage(m.Findings.String)
	}
	if m.CreatedAt.Valid {
		result.CreatedAt = m.CreatedAt.Time
	}
	if m.StartedAt.Valid {
		t := m.StartedAt.Time
		result.StartedAt = &t
	}
	if m.CompletedAt.Valid {
		t := m.CompletedAt.Time
		result.CompletedAt = &t
	}
	if m.Deadline.Valid {
		t := m.Deadline.Time
		result.Deadline = &t
	}
	return result, nil
}
