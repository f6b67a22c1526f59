package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 1024).
//   - MaxBatchEvents: flush once this many events queue (default 256).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 250ms).
//   - SinkTimeout: per-sink timeout while flushing (default 5s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Stats reports Hub counters.
type Stats struct {
	Accepted int64
	Dropped  int64
	Invalid  int64
	Flushes  int64
}

// Hub decouples the synchronous monitor callbacks from slow sinks. Emit never
// blocks; a background goroutine batches events and hands each batch to every
// sink in registration order. Hub is safe for concurrent use.
type Hub struct {
	cfg         Config
	sinks       []Sink
	events      chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *zap.Logger
	dropLimiter rateLimiter

	accepted      atomic.Int64
	dropped       atomic.Int64
	droppedSince  atomic.Int64
	invalid       atomic.Int64
	flushes       atomic.Int64
	closed        atomic.Bool
	closeOnce     sync.Once
	closeCtx      context.Context
	closeCtxMu    sync.Mutex
	sinkErrorsLog rateLimiter
}

// NewHub initializes a Hub and starts the background batching goroutine using
// the supplied sinks. The returned Hub is immediately ready to accept events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:           cfg,
		sinks:         append([]Sink(nil), sinks...),
		events:        make(chan Event, cfg.BufferSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		logger:        cfg.Logger,
		dropLimiter:   rateLimiter{interval: dropLogInterval},
		sinkErrorsLog: rateLimiter{interval: dropLogInterval},
	}
	go h.run()
	return h
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Emit enqueues an Event for batching. Invalid events are discarded; if the
// buffer is full the event is dropped and a rate-limited warning is logged.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.invalid.Add(1)
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		h.accepted.Add(1)
	default:
		h.dropped.Add(1)
		h.droppedSince.Add(1)
		if h.dropLimiter.Allow(time.Now()) {
			h.logger.Warn("progress events dropped due to backpressure",
				zap.Int64("dropped", h.droppedSince.Swap(0)),
				zap.String("monitor", evt.Monitor),
			)
		}
	}
}

// Stats returns a snapshot of the Hub counters.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{
		Accepted: h.accepted.Load(),
		Dropped:  h.dropped.Load(),
		Invalid:  h.invalid.Load(),
		Flushes:  h.flushes.Load(),
	}
}

// Close drains remaining events, flushes and closes sinks, and blocks until
// the background goroutine exits or ctx is done. It is safe to call multiple
// times; subsequent calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtxMu.Lock()
		h.closeCtx = ctx
		h.closeCtxMu.Unlock()
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	b := newBatcher(h.cfg.MaxBatchEvents, h.cfg.MaxBatchWait)
	for {
		select {
		case evt := <-h.events:
			if b.add(evt) {
				h.flush(b.take())
			}
		case <-b.timer.C:
			b.timerActive = false
			h.flush(b.take())
		case <-h.stopCh:
			b.stop()
			h.drain(b)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) drain(b *batcher) {
	for {
		select {
		case evt := <-h.events:
			b.batch = append(b.batch, evt)
			if len(b.batch) >= h.cfg.MaxBatchEvents {
				h.flush(b.take())
			}
		default:
			h.flush(b.take())
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	h.flushes.Add(1)
	baseCtx := h.cfg.BaseContext
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(baseCtx, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil && h.sinkErrorsLog.Allow(time.Now()) {
			h.logger.Warn("progress sink consume failed",
				zap.Error(err),
				zap.Int("batch_size", len(batch)),
			)
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	h.closeCtxMu.Lock()
	ctx := h.closeCtx
	h.closeCtxMu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

// batcher accumulates events until the size limit is reached or the wait
// timer fires. take hands out a fresh slice so sinks may retain batches.
type batcher struct {
	batch       []Event
	max         int
	wait        time.Duration
	timer       *time.Timer
	timerActive bool
}

func newBatcher(maxEvents int, wait time.Duration) *batcher {
	t := time.NewTimer(wait)
	t.Stop()
	return &batcher{
		batch: make([]Event, 0, maxEvents),
		max:   maxEvents,
		wait:  wait,
		timer: t,
	}
}

// add appends evt and reports whether the batch is full.
func (b *batcher) add(evt Event) bool {
	b.batch = append(b.batch, evt)
	if len(b.batch) >= b.max {
		return true
	}
	if !b.timerActive {
		b.timer.Reset(b.wait)
		b.timerActive = true
	}
	return false
}

func (b *batcher) take() []Event {
	b.stop()
	if len(b.batch) == 0 {
		return nil
	}
	out := b.batch
	b.batch = make([]Event, 0, b.max)
	return out
}

func (b *batcher) stop() {
	if !b.timerActive {
		return
	}
	if !b.timer.Stop() {
		select {
		case <-b.timer.C:
		default:
		}
	}
	b.timerActive = false
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if last != 0 && nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
