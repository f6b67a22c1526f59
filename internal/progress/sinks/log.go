package sinks

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/workprogress/internal/progress"
)

// LogSink emits one structured log line per event. Units-consumed events are
// logged at debug level unless they belong to a root monitor; completion and
// cancellation are always logged at info.
type LogSink struct {
	logger   *zap.Logger
	limiters *monitorLimiter
}

// NewLogSink wires a Zap logger to the sink interface. A positive
// perMonitorRPS throttles units-consumed lines per monitor path using a token
// bucket of the given burst; terminal events are never throttled.
func NewLogSink(logger *zap.Logger, perMonitorRPS float64, burst int) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LogSink{logger: logger}
	if perMonitorRPS > 0 {
		s.limiters = newMonitorLimiter(rate.Limit(perMonitorRPS), burst)
	}
	return s
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		if evt.Kind == progress.KindConsumed {
			if !s.limiters.allow(evt.Monitor) {
				continue
			}
			if !evt.Root() {
				level = zapcore.DebugLevel
			}
		} else {
			s.limiters.forget(evt.Monitor)
		}
		s.logger.Log(level, "progress event",
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("kind", string(evt.Kind)),
			zap.String("monitor", evt.Monitor),
			zap.Float64("consumed", evt.Consumed),
			zap.Int("total", evt.Total),
			zap.Float64("fraction", evt.Fraction()),
			zap.String("message", evt.Message),
			zap.Time("ts", evt.TS),
		)
	}
	return nil
}

// Close flushes buffered log entries.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}

// monitorLimiter keeps one token bucket per monitor path. A nil
// *monitorLimiter allows everything.
type monitorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newMonitorLimiter(limit rate.Limit, burst int) *monitorLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &monitorLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (m *monitorLimiter) allow(monitor string) bool {
	if m == nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lim, ok := m.limiters[monitor]
	if !ok {
		lim = rate.NewLimiter(m.limit, m.burst)
		m.limiters[monitor] = lim
	}
	return lim.Allow()
}

// forget drops the bucket of a terminated monitor so the map stays bounded by
// the number of open monitors.
func (m *monitorLimiter) forget(monitor string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.limiters, monitor)
}
