// Package store declares interfaces for recording monitored runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// UnknownTotal is stored while a monitor has not declared its total.
const UnknownTotal = -1

// RunStatus mirrors the lifecycle of a monitor.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one monitored execution of a root monitor.
type Run struct {
	// ID is the run identifier stamped by the Recorder.
	ID uuid.UUID
	// Root is the id of the root monitor.
	Root string
	// StartedAt is the timestamp of the first event seen for the run.
	StartedAt time.Time
	// FinishedAt is nil until the root monitor completes or is cancelled.
	FinishedAt *time.Time
	// Status is running/completed/cancelled.
	Status RunStatus
	// Message optionally stores the final root message.
	Message *string
}

// MonitorProgress is the latest known state of one monitor within a run.
type MonitorProgress struct {
	RunID      uuid.UUID
	Monitor    string
	LastUpdate time.Time
	Consumed   float64
	// Total is the declared total or UnknownTotal.
	Total  int
	Status RunStatus
	// Events counts the events folded into this row.
	Events int64
}

// MonitorUpdate is the collapsed delta applied by UpsertMonitorProgress.
type MonitorUpdate struct {
	Monitor  string
	Consumed float64
	Total    int
	Status   RunStatus
	Events   int64
	At       time.Time
	// Message is the text of the newest folded event.
	Message string
}

// RunRepository records runs and per-monitor progress.
type RunRepository interface {
	// UpsertRunStart inserts the run if unknown; it is idempotent.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, root string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and message.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, msg *string) error
	// UpsertMonitorProgress replaces the latest state of one monitor and adds Events.
	UpsertMonitorProgress(ctx context.Context, runID uuid.UUID, update MonitorUpdate) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset, newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunMonitors returns the monitors of one run ordered by path.
	ListRunMonitors(ctx context.Context, runID uuid.UUID, limit, offset int) ([]MonitorProgress, error)
}
