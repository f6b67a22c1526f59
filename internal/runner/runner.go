// Package runner drives a Plan against a monitor tree. All monitor calls are
// made from the goroutine that calls Run, which satisfies the monitor's
// single-writer requirement.
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workprogress/pkg/monitor"
)

// Tracker attaches observers to freshly created monitors. progress.Recorder
// satisfies it.
type Tracker interface {
	Track(m *monitor.Monitor)
}

// Config controls Runner behavior.
type Config struct {
	// MonitorOptions are passed to the root monitor and inherited by steps.
	MonitorOptions []monitor.Option
	// TrackDepth limits which monitors are handed to the Tracker: 0 tracks
	// only the root, negative values track every level.
	TrackDepth int
}

// Runner executes plans.
type Runner struct {
	tracker Tracker
	cfg     Config
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

// New constructs a Runner. tracker may be nil.
func New(tracker Tracker, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Run executes plan and returns its root monitor. When ctx is cancelled or a
// step fails, every open monitor on the active path is cancelled and the
// error is returned alongside the (cancelled) root.
func (r *Runner) Run(ctx context.Context, plan Plan) (*monitor.Monitor, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	root := monitor.New(plan.Name, r.cfg.MonitorOptions...)
	r.track(root, 0)
	r.logger.Info("plan started", zap.String("plan", plan.Name), zap.Int("total", plan.Total))

	start := time.Now()
	if err := r.runStep(ctx, root, plan.root(), 0); err != nil {
		r.logger.Warn("plan aborted",
			zap.String("plan", plan.Name),
			zap.Float64("fraction", root.Fraction()),
			zap.Error(err),
		)
		return root, fmt.Errorf("run plan %s: %w", plan.Name, err)
	}
	r.logger.Info("plan finished",
		zap.String("plan", plan.Name),
		zap.Stringer("state", root.State()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return root, nil
}

func (r *Runner) runStep(ctx context.Context, m *monitor.Monitor, step Step, depth int) error {
	if err := m.SetTotalWorkUnits(step.Total); err != nil {
		return fmt.Errorf("declare total: %w", err)
	}
	for _, child := range step.Steps {
		if err := ctx.Err(); err != nil {
			return r.abort(m, err)
		}
		sub, err := m.CreateSubMonitor(child.Allocated)
		if err != nil {
			return r.abort(m, err)
		}
		r.track(sub, depth+1)
		r.logger.Debug("step started",
			zap.String("step", child.Name),
			zap.String("monitor", sub.Path()),
			zap.Int("allocated", child.Allocated),
		)
		if err := r.runStep(ctx, sub, child, depth+1); err != nil {
			return r.abort(m, fmt.Errorf("step %s: %w", child.Name, err))
		}
	}
	if err := r.work(ctx, m, step); err != nil {
		return r.abort(m, err)
	}
	if m.State() == monitor.StateOpen {
		if err := m.Finish(step.Name + " done"); err != nil {
			return fmt.Errorf("finish %s: %w", m.Path(), err)
		}
	}
	return nil
}

func (r *Runner) work(ctx context.Context, m *monitor.Monitor, step Step) error {
	if step.Work != nil {
		return step.Work(ctx, m)
	}
	n := step.direct()
	for i := 0; i < n; i++ {
		if err := r.sleep(ctx, step.UnitDelay); err != nil {
			return err
		}
		if err := m.ConsumeWithMessage(1, fmt.Sprintf("%s: %d/%d", step.Name, i+1, n)); err != nil {
			return err
		}
	}
	return nil
}

// abort cancels m unless it already terminated and returns cause.
func (r *Runner) abort(m *monitor.Monitor, cause error) error {
	if m.State() == monitor.StateOpen {
		if err := m.Cancel(cause.Error()); err != nil {
			r.logger.Debug("cancel failed", zap.String("monitor", m.Path()), zap.Error(err))
		}
	}
	return cause
}

func (r *Runner) track(m *monitor.Monitor, depth int) {
	if r.tracker == nil {
		return
	}
	if r.cfg.TrackDepth >= 0 && depth > r.cfg.TrackDepth {
		return
	}
	r.tracker.Track(m)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
