package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/workprogress/internal/progress"
)

// PrometheusSink exports monitor progress via Prometheus. Gauges are labeled
// by monitor path, so deep or very wide trees should only be tracked at the
// levels worth graphing.
type PrometheusSink struct {
	events        *prometheus.CounterVec
	unitsConsumed *prometheus.GaugeVec
	fraction      *prometheus.GaugeVec
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workprogress_events_total",
			Help: "Monitor events partitioned by kind.",
		}, []string{"kind"}),
		unitsConsumed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "workprogress_monitor_units_consumed",
			Help: "Latest aggregate units consumed per monitor.",
		}, []string{"monitor"}),
		fraction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "workprogress_monitor_fraction",
			Help: "Latest consumed/total ratio per monitor (0 while the total is unknown).",
		}, []string{"monitor"}),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workprogress_runs_started_total",
			Help: "Root monitors that reported their first event.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workprogress_runs_finished_total",
			Help: "Root monitors that terminated, partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workprogress_runs_running",
			Help: "Root monitors currently open.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workprogress_run_duration_seconds",
			Help:    "Time between the first and last event of a run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		tracker: newRunTracker(finishedRunsRemembered),
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.unitsConsumed,
		s.fraction,
		s.runsStarted,
		s.runsFinished,
		s.runsRunning,
		s.runDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	s.events.WithLabelValues(string(evt.Kind)).Inc()
	s.unitsConsumed.WithLabelValues(evt.Monitor).Set(evt.Consumed)
	s.fraction.WithLabelValues(evt.Monitor).Set(evt.Fraction())
	if !evt.Root() {
		return
	}
	if s.tracker.start(evt.RunID, evt.TS) {
		s.runsStarted.Inc()
		s.runsRunning.Inc()
	}
	var result string
	switch evt.Kind {
	case progress.KindCompleted:
		result = "completed"
	case progress.KindCancelled:
		result = "cancelled"
	default:
		return
	}
	started, ok := s.tracker.complete(evt.RunID)
	if !ok {
		return
	}
	s.runsRunning.Dec()
	s.runsFinished.WithLabelValues(result).Inc()
	if d := evt.TS.Sub(started); d > 0 {
		s.runDuration.WithLabelValues(result).Observe(d.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// finishedRunsRemembered bounds how many finished run ids are kept to swallow
// late duplicate terminal events.
const finishedRunsRemembered = 1024

type runTracker struct {
	mu       sync.Mutex
	running  map[[16]byte]time.Time
	finished map[[16]byte]struct{}
	order    [][16]byte
	limit    int
}

func newRunTracker(limit int) *runTracker {
	return &runTracker{
		running:  make(map[[16]byte]time.Time),
		finished: make(map[[16]byte]struct{}),
		limit:    limit,
	}
}

// start reports whether id was seen for the first time.
func (t *runTracker) start(id [16]byte, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	if _, ok := t.finished[id]; ok {
		return false
	}
	t.running[id] = at
	return true
}

func (t *runTracker) complete(id [16]byte) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	started, ok := t.running[id]
	if !ok {
		return time.Time{}, false
	}
	delete(t.running, id)
	t.remember(id)
	return started, true
}

// remember records id as finished, evicting the oldest id past the limit.
func (t *runTracker) remember(id [16]byte) {
	if t.limit <= 0 {
		return
	}
	if len(t.order) >= t.limit {
		delete(t.finished, t.order[0])
		t.order = t.order[1:]
	}
	t.finished[id] = struct{}{}
	t.order = append(t.order, id)
}
