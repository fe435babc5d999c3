// Package memory provides an in-memory subtask store. Terminal transitions
// and the sibling countdown happen in one critical section, so the first
// terminal report of the last outstanding sibling is the only call that
// observes AllSettled.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/autarch-dev/autarch/internal/clock"
	"github.com/autarch-dev/autarch/model/task"
	"github.com/autarch-dev/autarch/service/subtask"
)

// Store is an in-memory subtask.Store.
type Store struct {
	mux     sync.RWMutex
	records map[string]*task.Subtask
	groups  map[string][]string
}

// New creates an in-memory store.
func New() *Store {
	return &Store{
		records: make(map[string]*task.Subtask),
		groups:  make(map[string][]string),
	}
}

// Create persists a new subtask record.
func (s *Store) Create(_ context.Context, st *task.Subtask) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	cp := *st
	s.records[st.ID] = &cp
	s.groups[st.ParentSessionID] = append(s.groups[st.ParentSessionID], st.ID)
	return nil
}

// Start moves a pending subtask to running.
func (s *Store) Start(_ context.Context, id string, deadline *time.Time) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return subtask.ErrNotFound
	}
	if rec.Status != task.StatusPending {
		return subtask.ErrInvalidTransition
	}
	now := clock.Now()
	rec.Status = task.StatusRunning
	rec.StartedAt = &now
	rec.Deadline = deadline
	return nil
}

// Complete records findings and transitions the subtask to completed.
func (s *Store) Complete(ctx context.Context, id string, findings json.RawMessage) (*subtask.Outcome, error) {
	return s.settle(ctx, id, task.StatusCompleted, findings, "")
}

// Fail records the error and transitions the subtask to failed.
func (s *Store) Fail(ctx context.Context, id string, errMsg string) (*subtask.Outcome, error) {
	return s.settle(ctx, id, task.StatusFailed, nil, errMsg)
}

func (s *Store) settle(_ context.Context, id string, status task.Status, findings json.RawMessage, errMsg string) (*subtask.Outcome, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, subtask.ErrNotFound
	}
	if rec.Status.IsTerminal() {
		snapshot := *rec
		return &subtask.Outcome{Transitioned: false, Subtask: &snapshot}, nil
	}
	now := clock.Now()
	rec.Status = status
	rec.Findings = findings
	rec.Error = errMsg
	rec.CompletedAt = &now

	remaining := 0
	for _, sibID := range s.groups[rec.ParentSessionID] {
		if sib := s.records[sibID]; sib != nil && !sib.Status.IsTerminal() {
			remaining++
		}
	}

	snapshot := *rec
	return &subtask.Outcome{
		Transitioned: true,
		AllSettled:   remaining == 0,
		Remaining:    remaining,
		Subtask:      &snapshot,
	}, nil
}

// Get returns a copy of the subtask.
func (s *Store) Get(_ context.Context, id string) (*task.Subtask, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, subtask.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Siblings returns the subtasks of one coordinator session in creation order.
func (s *Store) Siblings(_ context.Context, parentSessionID string) ([]*task.Subtask, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	ids, ok := s.groups[parentSessionID]
	if !ok {
		return nil, nil
	}
	result := make([]*task.Subtask, 0, len(ids))
	for _, id := range ids {
		if rec := s.records[id]; rec != nil {
			cp := *rec
			result = append(result, &cp)
		}
	}
	return result, nil
}

// ListRunning returns all running subtasks.
func (s *Store) ListRunning(_ context.Context) ([]*task.Subtask, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var result []*task.Subtask
	for _, rec := range s.records {
		if rec.Status == task.StatusRunning {
			cp := *rec
			result = append(result, &cp)
		}
	}
	return result, nil
}
