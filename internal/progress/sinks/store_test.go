package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/workprogress/internal/progress"
	"github.com/JakeFAU/workprogress/internal/store"
)

// TestStoreSinkCollapsesMonitorEvents ensures one write per monitor per batch.
func TestStoreSinkCollapsesMonitorEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, TS: now, Kind: progress.KindConsumed, Monitor: "backup", Consumed: 1, Total: 10},
		{RunID: runID, TS: now.Add(time.Second), Kind: progress.KindConsumed, Monitor: "backup/Child-0", Consumed: 50, Total: 100},
		{RunID: runID, TS: now.Add(2 * time.Second), Kind: progress.KindConsumed, Monitor: "backup", Consumed: 3.5, Total: 10},
		{RunID: runID, TS: now.Add(3 * time.Second), Kind: progress.KindCompleted, Monitor: "backup/Child-0", Consumed: 100, Total: 100},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []uuid.UUID{runUUID}, repo.starts)
	require.Equal(t, []string{"backup"}, repo.roots)
	require.Empty(t, repo.completes)
	require.Len(t, repo.updates, 2)

	root := repo.updates[0]
	require.Equal(t, "backup", root.Monitor)
	require.Equal(t, int64(2), root.Events)
	require.InDelta(t, 3.5, root.Consumed, 1e-9)
	require.Equal(t, store.RunRunning, root.Status)

	child := repo.updates[1]
	require.Equal(t, "backup/Child-0", child.Monitor)
	require.Equal(t, int64(2), child.Events)
	require.Equal(t, store.RunCompleted, child.Status)
}

// TestStoreSinkCompletesRunOnRootTerminal marks the run finished.
func TestStoreSinkCompletesRunOnRootTerminal(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Kind: progress.KindConsumed, Monitor: "sync", Consumed: 1, Total: 4},
		{RunID: runID, TS: now.Add(time.Second), Kind: progress.KindCancelled, Monitor: "sync", Consumed: 1, Total: 4,
			Message: "step copy: context canceled"},
	}))

	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunCancelled, repo.statuses[0])
	require.Equal(t, []string{"step copy: context canceled"}, repo.messages)
}

// TestStoreSinkOmitsEmptyCompletionMessage leaves the run message unset.
func TestStoreSinkOmitsEmptyCompletionMessage(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Kind: progress.KindConsumed, Monitor: "sync", Consumed: 4, Total: 4,
			Message: "child monitor is closed"},
		{RunID: runID, TS: now, Kind: progress.KindCompleted, Monitor: "sync", Consumed: 4, Total: 4},
	}))

	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunCompleted, repo.statuses[0])
	require.Empty(t, repo.messages)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Kind: progress.KindConsumed, Monitor: "sync"},
	})
	require.Error(t, err)
}

func TestRootOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a", rootOf("a"))
	require.Equal(t, "a", rootOf("a/Child-0/Child-3"))
}

type fakeRunRepo struct {
	fail      bool
	starts    []uuid.UUID
	roots     []string
	completes []uuid.UUID
	statuses  []store.RunStatus
	messages  []string
	updates   []store.MonitorUpdate
}

func (f *fakeRunRepo) UpsertRunStart(_ context.Context, runID uuid.UUID, root string, _ time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.starts = append(f.starts, runID)
	f.roots = append(f.roots, root)
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	_ time.Time,
	status store.RunStatus,
	msg *string,
) error {
	if f.fail {
		return assertErr("complete")
	}
	if msg != nil {
		f.messages = append(f.messages, *msg)
	}
	f.completes = append(f.completes, runID)
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRunRepo) UpsertMonitorProgress(_ context.Context, _ uuid.UUID, update store.MonitorUpdate) error {
	if f.fail {
		return assertErr("monitor")
	}
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, assertErr("read")
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, assertErr("list")
}

func (f *fakeRunRepo) ListRunMonitors(context.Context, uuid.UUID, int, int) ([]store.MonitorProgress, error) {
	return nil, assertErr("monitors")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
