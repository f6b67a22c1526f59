package monitor

// State is the lifecycle position of a Monitor.
type State int

// Monitor states. Completed and Cancelled are terminal.
const (
	StateOpen State = iota
	StateCompleted
	StateCancelled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further mutation is accepted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}
