package monitor

// childRecord is the parent's accounting for one live sub-monitor.
type childRecord struct {
	seq           int
	allocated     int
	childConsumed float64
	childTotal    int
}

// observe stores the latest absolute progress reported by the child.
func (r *childRecord) observe(consumed float64, total int) {
	r.childConsumed = consumed
	r.childTotal = total
}

// contribution scales the child's consumed/total ratio into parent units.
// A child that has not declared a positive total contributes nothing.
func (r *childRecord) contribution() float64 {
	if r.childTotal <= 0 {
		return 0
	}
	c := float64(r.allocated) * (r.childConsumed / float64(r.childTotal))
	switch {
	case c < 0:
		return 0
	case c > float64(r.allocated):
		return float64(r.allocated)
	default:
		return c
	}
}

// aggregate recomputes progress from scratch: direct units plus every live
// child's normalized contribution.
func aggregate(direct int, children map[string]*childRecord) float64 {
	sum := float64(direct)
	for _, rec := range children {
		sum += rec.contribution()
	}
	return sum
}

// childLink is the listener a parent registers on each sub-monitor it
// creates. It carries the child id so the parent never needs to inspect the
// event source to find the matching record.
type childLink struct {
	parent *Monitor
	id     string
}

func (l *childLink) OnWorkUnitsConsumed(ev Event) {
	total := UnsetTotal
	if ev.Source != nil {
		total = ev.Source.TotalWorkUnits()
	}
	l.parent.childProgressed(l.id, ev.Consumed, total)
}

func (l *childLink) OnWorkCompleted(Event) {
	l.parent.childCompleted(l.id)
}

func (l *childLink) OnCancel(ev Event) {
	l.parent.childCancelled(l.id, ev.Message)
}
