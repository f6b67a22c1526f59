package monitor

import "errors"

var (
	// ErrInvalidState reports that the total work units were already declared.
	ErrInvalidState = errors.New("total work units already set")
	// ErrTerminated reports an operation on a completed or cancelled monitor.
	ErrTerminated = errors.New("monitor is terminated")
	// ErrInvalidUnits reports a negative unit count.
	ErrInvalidUnits = errors.New("work units must be >= 0")
)
