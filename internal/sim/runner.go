package sim

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"parking-service/internal/types"
)

// ErrTimeout is returned when the attempt is still running at the end of
// the simulated time budget.
var ErrTimeout = errors.New("simulation timed out")

// Stepper is one control cycle, typically core.ParkingSystem.
type Stepper interface {
	Tick(ctx context.Context) error
	Status() types.Status
}

type RunOptions struct {
	TickInterval time.Duration
	// Timeout is measured in simulated time.
	Timeout time.Duration
	// Realtime sleeps one tick interval per cycle.
	Realtime bool
	// OnTick observes every cycle after the step and before the world
	// moves.
	OnTick func(status types.Status, pose Pose)
}

// Run ticks the stepper and advances the world until the attempt is no
// longer active. The caller starts the attempt.
func Run(ctx context.Context, w *World, s Stepper, opts RunOptions) (types.Status, error) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.Status(), err
		}
		if err := s.Tick(ctx); err != nil {
			return s.Status(), err
		}

		status := s.Status()
		if opts.OnTick != nil {
			opts.OnTick(status, w.Pose())
		}
		if !status.Active {
			return status, nil
		}
		if w.Elapsed() >= opts.Timeout {
			return status, errors.Wrapf(ErrTimeout, "after %s in %s", opts.Timeout, status.Phase)
		}

		w.Advance(opts.TickInterval)
		if opts.Realtime {
			select {
			case <-ctx.Done():
				return s.Status(), ctx.Err()
			case <-time.After(opts.TickInterval):
			}
		}
	}
}
