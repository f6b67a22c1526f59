package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/workprogress/internal/clock/system"
	"github.com/JakeFAU/workprogress/pkg/monitor"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Recorder is a monitor.Listener that turns monitor callbacks into Events
// tagged with one run id. It runs on the monitor's goroutine and only hands
// events to the Emitter, so it never blocks the monitored work.
type Recorder struct {
	runID   [16]byte
	emitter Emitter
	clock   Clock
}

// NewRecorder builds a Recorder for runID. A nil clock uses the system clock.
func NewRecorder(runID uuid.UUID, emitter Emitter, clock Clock) *Recorder {
	if clock == nil {
		clock = system.New()
	}
	return &Recorder{
		runID:   UUIDToBytes(runID),
		emitter: emitter,
		clock:   clock,
	}
}

// RunID returns the run identifier stamped on every event.
func (r *Recorder) RunID() uuid.UUID {
	return uuid.UUID(r.runID)
}

// Track registers the Recorder on m. Sub-monitors are not tracked
// implicitly; call Track for every monitor whose own events should be sunk.
func (r *Recorder) Track(m *monitor.Monitor) {
	m.AddListener(r)
}

// Untrack removes the Recorder from m.
func (r *Recorder) Untrack(m *monitor.Monitor) {
	m.RemoveListener(r)
}

// OnWorkUnitsConsumed implements monitor.Listener.
func (r *Recorder) OnWorkUnitsConsumed(ev monitor.Event) {
	r.record(ev)
}

// OnWorkCompleted implements monitor.Listener.
func (r *Recorder) OnWorkCompleted(ev monitor.Event) {
	r.record(ev)
}

// OnCancel implements monitor.Listener.
func (r *Recorder) OnCancel(ev monitor.Event) {
	r.record(ev)
}

func (r *Recorder) record(ev monitor.Event) {
	if r.emitter == nil || ev.Source == nil {
		return
	}
	r.emitter.Emit(Event{
		RunID:    r.runID,
		TS:       r.clock.Now(),
		Kind:     KindOf(ev.Kind),
		Monitor:  ev.Source.Path(),
		Consumed: ev.Consumed,
		Total:    ev.Source.TotalWorkUnits(),
		Message:  ev.Message,
	})
}
