// Package monitor tracks hierarchical progress of long-running work.
//
// A Monitor declares a total number of work units, receives incremental
// Consume calls and can spawn sub-monitors whose own completion is folded
// proportionally into the parent's progress. Listeners registered on any
// monitor receive units-consumed, work-completed and cancel events
// synchronously, in registration order, on the goroutine that produced them.
//
// Monitors perform no locking. A tree must be driven by a single writer: the
// caller confines every monitor of a tree to one goroutine (or serializes
// access externally). Listener callbacks run inline and may call back into
// the monitor that notified them.
//
// Completed and cancelled monitors are terminal. Further Consume, Finish,
// Cancel or CreateSubMonitor calls fail with ErrTerminated instead of
// silently mutating counters.
package monitor
