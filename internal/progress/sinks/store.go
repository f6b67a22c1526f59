package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/workprogress/internal/progress"
	"github.com/JakeFAU/workprogress/internal/store"
)

// StoreSink folds events into a store.RunRepository. Within a batch only the
// newest state of each monitor is written, which keeps write amplification
// proportional to the number of monitors rather than events.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume collapses monitor deltas and forwards them to the repository. It
// respects ctx deadlines and returns repository errors wrapped.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	started := make(map[uuid.UUID]struct{})
	deltas := make(map[monitorKey]*store.MonitorUpdate)
	var order []monitorKey

	for _, evt := range batch {
		runID := evt.RunUUID()
		if _, ok := started[runID]; !ok {
			if err := s.repo.UpsertRunStart(ctx, runID, rootOf(evt.Monitor), evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
			started[runID] = struct{}{}
		}
		key := monitorKey{runID: runID, monitor: evt.Monitor}
		delta := deltas[key]
		if delta == nil {
			delta = &store.MonitorUpdate{Monitor: evt.Monitor}
			deltas[key] = delta
			order = append(order, key)
		}
		applyEvent(delta, evt)
	}

	for _, key := range order {
		delta := deltas[key]
		if err := s.repo.UpsertMonitorProgress(ctx, key.runID, *delta); err != nil {
			return fmt.Errorf("upsert monitor progress: %w", err)
		}
		if key.monitor != rootOf(key.monitor) || delta.Status == store.RunRunning {
			continue
		}
		if err := s.completeRun(ctx, key.runID, delta); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) completeRun(ctx context.Context, runID uuid.UUID, delta *store.MonitorUpdate) error {
	var msg *string
	if delta.Message != "" {
		msg = &delta.Message
	}
	if err := s.repo.CompleteRun(ctx, runID, delta.At, delta.Status, msg); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	s.logger.Debug("run finished",
		zap.Stringer("run_id", runID),
		zap.String("status", string(delta.Status)),
	)
	return nil
}

// applyEvent folds evt into delta. Later events win, except that a terminal
// status is never reverted by a units-consumed event in the same batch.
func applyEvent(delta *store.MonitorUpdate, evt progress.Event) {
	delta.Events++
	if evt.TS.Before(delta.At) {
		return
	}
	delta.At = evt.TS
	delta.Consumed = evt.Consumed
	delta.Total = evt.Total
	delta.Message = evt.Message
	switch evt.Kind {
	case progress.KindCompleted:
		delta.Status = store.RunCompleted
	case progress.KindCancelled:
		delta.Status = store.RunCancelled
	default:
		if delta.Status == "" {
			delta.Status = store.RunRunning
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func rootOf(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

type monitorKey struct {
	runID   uuid.UUID
	monitor string
}
