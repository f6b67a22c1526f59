package monitor

// Kind identifies which listener callback an Event was delivered through.
type Kind string

// Supported event kinds.
const (
	KindUnitsConsumed Kind = "UNITS_CONSUMED"
	KindWorkCompleted Kind = "WORK_COMPLETED"
	KindCancelled     Kind = "CANCELLED"
)

// Source is the read-only view of the monitor that emitted an Event.
type Source interface {
	ID() string
	Path() string
	TotalWorkUnits() int
	State() State
}

// Event is delivered to listeners for every consumption, completion or
// cancellation.
type Event struct {
	// Source is the emitting monitor. Recipients must not mutate it.
	Source Source
	// Kind mirrors the callback the event was delivered through.
	Kind Kind
	// Consumed is the aggregate progress of Source, including the normalized
	// contribution of its live children.
	Consumed float64
	// Message is free text supplied by the caller or generated on child updates.
	Message string
}
