package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/workprogress/pkg/monitor"
)

// ErrInvalidPlan reports a plan whose allocations cannot be honored.
var ErrInvalidPlan = errors.New("invalid plan")

// WorkFunc performs the direct work of a step. It may consume units on m; the
// runner finishes m afterwards if it is still open.
type WorkFunc func(ctx context.Context, m *monitor.Monitor) error

// Plan is the root of a job. Its direct units are Total minus the units
// allocated to Steps.
type Plan struct {
	Name      string        `mapstructure:"name"`
	Total     int           `mapstructure:"total"`
	UnitDelay time.Duration `mapstructure:"unit_delay"`
	Steps     []Step        `mapstructure:"steps"`
}

// Step is one sub-monitor of a plan. Allocated is the share of the parent's
// units the step is worth; Total is the step's own unit scale.
type Step struct {
	Name      string        `mapstructure:"name"`
	Allocated int           `mapstructure:"allocated"`
	Total     int           `mapstructure:"total"`
	UnitDelay time.Duration `mapstructure:"unit_delay"`
	Steps     []Step        `mapstructure:"steps"`

	Work WorkFunc `mapstructure:"-"`
}

// Validate checks names, totals and that children never allocate more units
// than their parent declares.
func (p Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan name is required: %w", ErrInvalidPlan)
	}
	if p.Total <= 0 {
		return fmt.Errorf("%s: total %d must be > 0: %w", p.Name, p.Total, ErrInvalidPlan)
	}
	return p.root().validate(p.Name)
}

func (p Plan) root() Step {
	return Step{
		Name:      p.Name,
		Allocated: p.Total,
		Total:     p.Total,
		UnitDelay: p.UnitDelay,
		Steps:     p.Steps,
	}
}

func (s Step) validate(path string) error {
	// Monitor paths are slash-joined, so a slash in a name would make a root
	// indistinguishable from a descendant.
	if strings.Contains(s.Name, "/") {
		return fmt.Errorf("%s: name %q must not contain '/': %w", path, s.Name, ErrInvalidPlan)
	}
	if s.Total < 0 {
		return fmt.Errorf("%s: total %d must be >= 0: %w", path, s.Total, ErrInvalidPlan)
	}
	if s.Allocated <= 0 {
		return fmt.Errorf("%s: allocated %d must be > 0: %w", path, s.Allocated, ErrInvalidPlan)
	}
	if s.UnitDelay < 0 {
		return fmt.Errorf("%s: unit_delay must be >= 0: %w", path, ErrInvalidPlan)
	}
	allocated := 0
	for i, child := range s.Steps {
		name := child.Name
		if name == "" {
			name = fmt.Sprintf("step[%d]", i)
		}
		if err := child.validate(path + "/" + name); err != nil {
			return err
		}
		allocated += child.Allocated
	}
	if allocated > s.Total {
		return fmt.Errorf("%s: steps allocate %d of %d units: %w", path, allocated, s.Total, ErrInvalidPlan)
	}
	return nil
}

// direct returns the units consumed by the step itself after its children.
func (s Step) direct() int {
	n := s.Total
	for _, child := range s.Steps {
		n -= child.Allocated
	}
	return n
}
