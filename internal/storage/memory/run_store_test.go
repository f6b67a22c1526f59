package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/workprogress/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	runID := uuid.New()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := s.UpsertRunStart(ctx, runID, "backup", start); err != nil {
		t.Fatalf("UpsertRunStart() error = %v", err)
	}
	if err := s.UpsertRunStart(ctx, runID, "ignored", start.Add(time.Hour)); err != nil {
		t.Fatalf("UpsertRunStart() second call error = %v", err)
	}
	update := store.MonitorUpdate{
		Monitor:  "backup",
		Consumed: 2.5,
		Total:    10,
		Status:   store.RunRunning,
		Events:   3,
		At:       start.Add(time.Second),
	}
	if err := s.UpsertMonitorProgress(ctx, runID, update); err != nil {
		t.Fatalf("UpsertMonitorProgress() error = %v", err)
	}
	update.Consumed = 10
	update.Status = store.RunCompleted
	update.Events = 2
	update.At = start.Add(2 * time.Second)
	if err := s.UpsertMonitorProgress(ctx, runID, update); err != nil {
		t.Fatalf("UpsertMonitorProgress() error = %v", err)
	}
	msg := "done"
	if err := s.CompleteRun(ctx, runID, start.Add(3*time.Second), store.RunCompleted, &msg); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Root != "backup" || run.Status != store.RunCompleted || run.FinishedAt == nil {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Message == nil || *run.Message != "done" {
		t.Fatalf("expected message to be stored, got %v", run.Message)
	}

	rows, err := s.ListRunMonitors(ctx, runID, 10, 0)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListRunMonitors() unexpected result: rows=%v err=%v", rows, err)
	}
	if rows[0].Consumed != 10 || rows[0].Events != 5 || rows[0].Status != store.RunCompleted {
		t.Fatalf("unexpected monitor row: %+v", rows[0])
	}
}

func TestRunStoreIgnoresStaleMonitorUpdates(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	runID := uuid.New()
	now := time.Now().UTC()
	if err := s.UpsertRunStart(ctx, runID, "job", now); err != nil {
		t.Fatalf("UpsertRunStart() error = %v", err)
	}
	fresh := store.MonitorUpdate{Monitor: "job", Consumed: 5, Total: 5, Events: 1, At: now.Add(time.Minute)}
	stale := store.MonitorUpdate{Monitor: "job", Consumed: 1, Total: 5, Events: 1, At: now}
	if err := s.UpsertMonitorProgress(ctx, runID, fresh); err != nil {
		t.Fatalf("fresh update error = %v", err)
	}
	if err := s.UpsertMonitorProgress(ctx, runID, stale); err != nil {
		t.Fatalf("stale update error = %v", err)
	}
	rows, err := s.ListRunMonitors(ctx, runID, 0, 0)
	if err != nil {
		t.Fatalf("ListRunMonitors() error = %v", err)
	}
	if rows[0].Consumed != 5 || rows[0].Events != 2 {
		t.Fatalf("expected stale update to only count, got %+v", rows[0])
	}
}

func TestRunStoreListAndNotFound(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	base := time.Now().UTC()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		if err := s.UpsertRunStart(ctx, id, "job", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("UpsertRunStart() error = %v", err)
		}
	}
	if err := s.CompleteRun(ctx, ids[0], base, store.RunCancelled, nil); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}

	runs, err := s.ListRuns(ctx, nil, 2, 0)
	if err != nil || len(runs) != 2 || runs[0].ID != ids[2] {
		t.Fatalf("ListRuns() unexpected result: runs=%v err=%v", runs, err)
	}
	cancelled := store.RunCancelled
	runs, err = s.ListRuns(ctx, &cancelled, 10, 0)
	if err != nil || len(runs) != 1 || runs[0].ID != ids[0] {
		t.Fatalf("ListRuns(cancelled) unexpected result: runs=%v err=%v", runs, err)
	}
	runs, err = s.ListRuns(ctx, nil, 10, 5)
	if err != nil || len(runs) != 0 {
		t.Fatalf("ListRuns(offset) unexpected result: runs=%v err=%v", runs, err)
	}

	missing := uuid.New()
	if _, err := s.GetRun(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.ListRunMonitors(ctx, missing, 10, 0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from ListRunMonitors, got %v", err)
	}
	if err := s.CompleteRun(ctx, missing, base, store.RunCompleted, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from CompleteRun, got %v", err)
	}
	if err := s.UpsertMonitorProgress(ctx, missing, store.MonitorUpdate{Monitor: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from UpsertMonitorProgress, got %v", err)
	}
}
