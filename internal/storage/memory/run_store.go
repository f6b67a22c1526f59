// Package memory provides in-memory implementations of the store interfaces.
// Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/workprogress/internal/store"
)

// RunStore implements store.RunRepository in memory.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]store.Run
	monitors map[uuid.UUID]map[string]store.MonitorProgress
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:     make(map[uuid.UUID]store.Run),
		monitors: make(map[uuid.UUID]map[string]store.MonitorProgress),
	}
}

// UpsertRunStart records a running run unless it already exists.
func (s *RunStore) UpsertRunStart(_ context.Context, runID uuid.UUID, root string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return nil
	}
	s.runs[runID] = store.Run{
		ID:        runID,
		Root:      root,
		StartedAt: startedAt,
		Status:    store.RunRunning,
	}
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	msg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("complete run %s: %w", runID, store.ErrNotFound)
	}
	run.FinishedAt = pointerTime(finishedAt)
	run.Status = status
	if msg != nil {
		m := *msg
		run.Message = &m
	}
	s.runs[runID] = run
	return nil
}

// UpsertMonitorProgress replaces the latest monitor state and adds the event count.
func (s *RunStore) UpsertMonitorProgress(_ context.Context, runID uuid.UUID, update store.MonitorUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("monitor progress for run %s: %w", runID, store.ErrNotFound)
	}
	byPath := s.monitors[runID]
	if byPath == nil {
		byPath = make(map[string]store.MonitorProgress)
		s.monitors[runID] = byPath
	}
	row := byPath[update.Monitor]
	if !row.LastUpdate.IsZero() && update.At.Before(row.LastUpdate) {
		row.Events += update.Events
		byPath[update.Monitor] = row
		return nil
	}
	byPath[update.Monitor] = store.MonitorProgress{
		RunID:      runID,
		Monitor:    update.Monitor,
		LastUpdate: update.At,
		Consumed:   update.Consumed,
		Total:      update.Total,
		Status:     update.Status,
		Events:     row.Events + update.Events,
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListRunMonitors returns a run's monitors ordered by path.
func (s *RunStore) ListRunMonitors(
	_ context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.MonitorProgress, error) {
	s.mu.RLock()
	if _, ok := s.runs[runID]; !ok {
		s.mu.RUnlock()
		return nil, store.ErrNotFound
	}
	rows := make([]store.MonitorProgress, 0, len(s.monitors[runID]))
	for _, row := range s.monitors[runID] {
		rows = append(rows, row)
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Monitor < rows[j].Monitor
	})
	return page(rows, limit, offset), nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
