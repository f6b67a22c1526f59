package monitor

import (
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"
)

// UnsetTotal is returned by TotalWorkUnits before SetTotalWorkUnits is called.
const UnsetTotal = -1

const (
	childIDPrefix       = "Child-"
	msgChildProgressed  = "child monitor has new values"
	msgChildCompleted   = "child monitor is closed"
	msgChildCancelledFm = "child monitor %s cancelled: %s"
)

// Option customizes a root Monitor. Sub-monitors inherit the options of the
// monitor that created them.
type Option func(*options)

type options struct {
	logger          *zap.Logger
	propagateCancel bool
}

// WithLogger attaches a zap logger. Monitors log overshoot, missing child
// records and recovered listener panics; nothing is logged by default.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCancelPropagation makes a parent cancel itself when one of its
// sub-monitors is cancelled. Cancellation is local when disabled (default).
func WithCancelPropagation(enabled bool) Option {
	return func(o *options) {
		o.propagateCancel = enabled
	}
}

// Monitor is one node of a progress tree. The zero value is not usable; use
// New or CreateSubMonitor. A Monitor is not safe for concurrent use.
type Monitor struct {
	id        string
	path      string
	total     int
	consumed  int
	children  map[string]*childRecord
	listeners registry
	nextChild int
	state     State
	opts      options
	logger    *zap.Logger
}

// New returns a root monitor with the given id and no declared total.
func New(id string, opts ...Option) *Monitor {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return newMonitor(id, id, o)
}

func newMonitor(id, path string, o options) *Monitor {
	return &Monitor{
		id:       id,
		path:     path,
		total:    UnsetTotal,
		children: make(map[string]*childRecord),
		opts:     o,
		logger:   o.logger.With(zap.String("monitor", path)),
	}
}

// ID returns the identifier, unique among the siblings of the same parent.
func (m *Monitor) ID() string {
	return m.id
}

// Path returns the slash-separated ids from the root down to this monitor.
func (m *Monitor) Path() string {
	return m.path
}

// State returns the lifecycle state.
func (m *Monitor) State() State {
	return m.state
}

// TotalWorkUnits returns the declared total or UnsetTotal.
func (m *Monitor) TotalWorkUnits() int {
	return m.total
}

// SetTotalWorkUnits declares the total work units. It may succeed only once;
// later calls return ErrInvalidState and leave the first value in place.
func (m *Monitor) SetTotalWorkUnits(count int) error {
	if err := m.checkOpen("set total"); err != nil {
		return err
	}
	if m.total != UnsetTotal {
		return fmt.Errorf("set total on %s (already %d): %w", m.path, m.total, ErrInvalidState)
	}
	if count < 0 {
		return fmt.Errorf("set total %d on %s: %w", count, m.path, ErrInvalidUnits)
	}
	m.total = count
	return nil
}

// CreateSubMonitor returns a child whose full completion counts for
// allocated units of this monitor. Child ids are "Child-0", "Child-1", ...
// and are never reused by the same parent.
func (m *Monitor) CreateSubMonitor(allocated int) (*Monitor, error) {
	if err := m.checkOpen("create sub-monitor"); err != nil {
		return nil, err
	}
	if allocated < 0 {
		return nil, fmt.Errorf("allocate %d units on %s: %w", allocated, m.path, ErrInvalidUnits)
	}
	seq := m.nextChild
	m.nextChild++
	id := childIDPrefix + strconv.Itoa(seq)
	child := newMonitor(id, m.path+"/"+id, m.opts)
	m.children[id] = &childRecord{seq: seq, allocated: allocated}
	child.AddListener(&childLink{parent: m, id: id})
	return child, nil
}

// Consume records units of direct work. See ConsumeWithMessage.
func (m *Monitor) Consume(units int) error {
	return m.ConsumeWithMessage(units, "")
}

// ConsumeWithMessage adds units to the direct counter, notifies listeners of
// the new aggregate and completes the monitor when the direct counter
// (including folded sub-monitors) equals the declared total exactly.
func (m *Monitor) ConsumeWithMessage(units int, message string) error {
	if err := m.checkOpen("consume"); err != nil {
		return err
	}
	if units < 0 {
		return fmt.Errorf("consume %d units on %s: %w", units, m.path, ErrInvalidUnits)
	}
	m.consumed += units
	m.dispatch(m.event(KindUnitsConsumed, message))
	m.checkCompletion(message)
	return nil
}

// Finish completes the monitor regardless of the consumed units.
func (m *Monitor) Finish(message string) error {
	if err := m.checkOpen("finish"); err != nil {
		return err
	}
	m.complete(message)
	return nil
}

// Cancel marks the monitor cancelled and notifies listeners with the current
// aggregate. The parent is only affected when cancel propagation is enabled.
func (m *Monitor) Cancel(message string) error {
	if err := m.checkOpen("cancel"); err != nil {
		return err
	}
	m.cancel(message)
	return nil
}

// AddListener appends l; listeners are notified in registration order.
func (m *Monitor) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.listeners.add(l)
}

// RemoveListener unregisters l. It is a no-op when l is not registered.
// A listener removed while an event is being dispatched does not receive it.
func (m *Monitor) RemoveListener(l Listener) {
	m.listeners.remove(l)
}

// Aggregate returns direct units plus the normalized progress of live children.
func (m *Monitor) Aggregate() float64 {
	return aggregate(m.consumed, m.children)
}

// Fraction returns Aggregate divided by the declared total, or 0 while the
// total is unset or zero. It can exceed 1 when callers overshoot.
func (m *Monitor) Fraction() float64 {
	if m.total <= 0 {
		return 0
	}
	return m.Aggregate() / float64(m.total)
}

// Snapshot is a point-in-time copy of a monitor's accounting.
type Snapshot struct {
	ID        string
	Path      string
	State     State
	Total     int
	Consumed  int
	Aggregate float64
	Listeners int
	Children  []ChildSnapshot
}

// ChildSnapshot describes one live sub-monitor as seen by its parent.
type ChildSnapshot struct {
	ID            string
	Allocated     int
	ChildConsumed float64
	ChildTotal    int
	Contribution  float64
}

// Snapshot copies the current accounting. Children are ordered by creation.
func (m *Monitor) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        m.id,
		Path:      m.path,
		State:     m.state,
		Total:     m.total,
		Consumed:  m.consumed,
		Aggregate: m.Aggregate(),
		Listeners: m.listeners.len(),
		Children:  make([]ChildSnapshot, 0, len(m.children)),
	}
	ids := make([]string, 0, len(m.children))
	for id := range m.children {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return m.children[a].seq - m.children[b].seq
	})
	for _, id := range ids {
		rec := m.children[id]
		snap.Children = append(snap.Children, ChildSnapshot{
			ID:            id,
			Allocated:     rec.allocated,
			ChildConsumed: rec.childConsumed,
			ChildTotal:    rec.childTotal,
			Contribution:  rec.contribution(),
		})
	}
	return snap
}

func (m *Monitor) childProgressed(id string, consumed float64, total int) {
	rec, ok := m.liveChild(id, "progress")
	if !ok {
		return
	}
	rec.observe(consumed, total)
	m.dispatch(m.event(KindUnitsConsumed, msgChildProgressed))
	m.checkCompletion("")
}

func (m *Monitor) childCompleted(id string) {
	rec, ok := m.liveChild(id, "completion")
	if !ok {
		return
	}
	delete(m.children, id)
	m.consumed += rec.allocated
	m.dispatch(m.event(KindUnitsConsumed, msgChildCompleted))
	m.checkCompletion("")
}

func (m *Monitor) childCancelled(id, message string) {
	if !m.opts.propagateCancel || m.state.Terminal() {
		return
	}
	m.logger.Debug("propagating child cancellation", zap.String("child", id))
	m.cancel(fmt.Sprintf(msgChildCancelledFm, id, message))
}

// liveChild resolves the record for a child callback. Callbacks arriving
// after this monitor terminated, or for a record already folded, are dropped.
func (m *Monitor) liveChild(id, what string) (*childRecord, bool) {
	if m.state.Terminal() {
		m.logger.Debug("ignoring child event on terminated monitor",
			zap.String("child", id),
			zap.String("event", what),
			zap.Stringer("state", m.state),
		)
		return nil, false
	}
	rec, ok := m.children[id]
	if !ok {
		m.logger.Warn("child event for unknown sub-monitor",
			zap.String("child", id),
			zap.String("event", what),
		)
		return nil, false
	}
	return rec, true
}

func (m *Monitor) checkCompletion(message string) {
	if m.state != StateOpen || m.total == UnsetTotal {
		return
	}
	switch {
	case m.consumed == m.total:
		m.complete(message)
	case m.consumed > m.total:
		m.logger.Warn("consumed units overshoot declared total",
			zap.Int("consumed", m.consumed),
			zap.Int("total", m.total),
		)
	}
}

// complete flips the state before dispatching so that re-entrant calls made
// by listeners cannot fire a second completion.
func (m *Monitor) complete(message string) {
	m.state = StateCompleted
	m.logger.Debug("monitor completed", zap.Int("consumed", m.consumed), zap.Int("total", m.total))
	m.dispatch(m.event(KindWorkCompleted, message))
}

func (m *Monitor) cancel(message string) {
	m.state = StateCancelled
	m.logger.Debug("monitor cancelled", zap.String("message", message))
	m.dispatch(m.event(KindCancelled, message))
}

func (m *Monitor) checkOpen(op string) error {
	if m.state.Terminal() {
		return fmt.Errorf("%s on %s (%s): %w", op, m.path, m.state, ErrTerminated)
	}
	return nil
}

func (m *Monitor) event(kind Kind, message string) Event {
	return Event{
		Source:   m,
		Kind:     kind,
		Consumed: m.Aggregate(),
		Message:  message,
	}
}

func (m *Monitor) dispatch(ev Event) {
	for _, reg := range m.listeners.snapshot() {
		if reg.removed {
			continue
		}
		m.deliver(reg.listener, ev)
	}
}

// deliver isolates listener panics so one faulty observer cannot prevent the
// others, or the parent link, from seeing the event.
func (m *Monitor) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("progress listener panicked",
				zap.String("kind", string(ev.Kind)),
				zap.Any("panic", r),
			)
		}
	}()
	switch ev.Kind {
	case KindUnitsConsumed:
		l.OnWorkUnitsConsumed(ev)
	case KindWorkCompleted:
		l.OnWorkCompleted(ev)
	case KindCancelled:
		l.OnCancel(ev)
	}
}
