// Package progress defines the event records forwarded to progress sinks.
package progress

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/workprogress/pkg/monitor"
)

// Kind denotes which monitor callback produced an Event.
type Kind string

// Supported event kinds, mirroring monitor.Kind.
const (
	KindConsumed  Kind = "UNITS_CONSUMED"
	KindCompleted Kind = "WORK_COMPLETED"
	KindCancelled Kind = "CANCELLED"
)

// Event is the flattened, sink-friendly form of a monitor.Event.
type Event struct {
	// RunID groups every event of one monitored run using the 16-byte UUID form.
	RunID [16]byte `json:"-"`
	// TS is the UTC timestamp recorded by the Recorder.
	TS time.Time `json:"ts"`
	// Kind mirrors the monitor callback.
	Kind Kind `json:"kind"`
	// Monitor is the slash-separated path of the emitting monitor.
	Monitor string `json:"monitor"`
	// Consumed is the aggregate progress of the monitor, in its own units.
	Consumed float64 `json:"consumed"`
	// Total is the declared total, or monitor.UnsetTotal.
	Total int `json:"total"`
	// Message is the free text carried by the monitor event.
	Message string `json:"message,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Monitor == "" {
		return errors.New("monitor path is required")
	}
	switch e.Kind {
	case KindConsumed, KindCompleted, KindCancelled:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Consumed < 0 {
		return errors.New("consumed must be >= 0")
	}
	return nil
}

// Fraction returns Consumed/Total, or 0 while the total is unknown.
func (e Event) Fraction() float64 {
	if e.Total <= 0 {
		return 0
	}
	return e.Consumed / float64(e.Total)
}

// Root reports whether the event was emitted by a root monitor.
func (e Event) Root() bool {
	return !strings.Contains(e.Monitor, "/")
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// KindOf maps a monitor event kind to the sink kind.
func KindOf(k monitor.Kind) Kind {
	switch k {
	case monitor.KindWorkCompleted:
		return KindCompleted
	case monitor.KindCancelled:
		return KindCancelled
	default:
		return KindConsumed
	}
}
