package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/workprogress/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core), 0, 0)
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Kind: progress.KindConsumed, Monitor: "backup", Consumed: 2, Total: 10},
		{RunID: runID, TS: now, Kind: progress.KindConsumed, Monitor: "backup/Child-0", Consumed: 5, Total: 20},
		{RunID: runID, TS: now, Kind: progress.KindCompleted, Monitor: "backup/Child-0", Consumed: 20, Total: 20, Message: "done"},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.Equal(t, zapcore.InfoLevel, entries[2].Level)

	fields := entries[0].ContextMap()
	require.Equal(t, "backup", fields["monitor"])
	require.InDelta(t, 0.2, fields["fraction"], 1e-9)
	require.Equal(t, "done", entries[2].ContextMap()["message"])
}

func TestLogSinkThrottlesConsumedEvents(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	// One token per monitor and a refill rate far too slow to matter here.
	sink := NewLogSink(zap.New(core), 0.001, 1)
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	var batch []progress.Event
	for i := 0; i < 5; i++ {
		batch = append(batch, progress.Event{
			RunID: runID, TS: now, Kind: progress.KindConsumed, Monitor: "root", Consumed: float64(i), Total: 10,
		})
	}
	batch = append(batch,
		progress.Event{RunID: runID, TS: now, Kind: progress.KindConsumed, Monitor: "root/Child-0", Consumed: 1, Total: 2},
		progress.Event{RunID: runID, TS: now, Kind: progress.KindCompleted, Monitor: "root", Consumed: 10, Total: 10},
	)
	require.NoError(t, sink.Consume(context.Background(), batch))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, "root", entries[0].ContextMap()["monitor"])
	require.Equal(t, "root/Child-0", entries[1].ContextMap()["monitor"])
	require.Equal(t, string(progress.KindCompleted), entries[2].ContextMap()["kind"])
	_, tracked := sink.limiters.limiters["root"]
	require.False(t, tracked, "terminal event should release the bucket")
}
