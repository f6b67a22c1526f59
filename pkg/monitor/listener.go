package monitor

import "reflect"

// Listener observes a Monitor. Callbacks run synchronously on the goroutine
// that mutated the monitor and may call back into it.
type Listener interface {
	OnWorkUnitsConsumed(Event)
	OnWorkCompleted(Event)
	OnCancel(Event)
}

// ListenerFuncs adapts plain functions to the Listener interface. Nil fields
// are skipped. Register it by pointer so it can later be removed.
type ListenerFuncs struct {
	UnitsConsumed func(Event)
	WorkCompleted func(Event)
	Cancelled     func(Event)
}

// OnWorkUnitsConsumed implements Listener.
func (f *ListenerFuncs) OnWorkUnitsConsumed(ev Event) {
	if f.UnitsConsumed != nil {
		f.UnitsConsumed(ev)
	}
}

// OnWorkCompleted implements Listener.
func (f *ListenerFuncs) OnWorkCompleted(ev Event) {
	if f.WorkCompleted != nil {
		f.WorkCompleted(ev)
	}
}

// OnCancel implements Listener.
func (f *ListenerFuncs) OnCancel(ev Event) {
	if f.Cancelled != nil {
		f.Cancelled(ev)
	}
}

// registration tracks one AddListener call. The removed flag lets an
// in-flight dispatch skip listeners unregistered after it started.
type registration struct {
	listener Listener
	removed  bool
}

type registry struct {
	entries []*registration
}

func (r *registry) add(l Listener) {
	r.entries = append(r.entries, &registration{listener: l})
}

// remove drops the first registration of l. The slice is rebuilt rather than
// shifted in place so snapshots held by running dispatches stay intact.
func (r *registry) remove(l Listener) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return
	}
	for i, reg := range r.entries {
		if reg.listener != l {
			continue
		}
		reg.removed = true
		next := make([]*registration, 0, len(r.entries)-1)
		next = append(next, r.entries[:i]...)
		r.entries = append(next, r.entries[i+1:]...)
		return
	}
}

func (r *registry) snapshot() []*registration {
	return r.entries[:len(r.entries):len(r.entries)]
}

func (r *registry) len() int {
	return len(r.entries)
}
