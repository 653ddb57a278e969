package parking

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"parking-service/internal/logger"
	"parking-service/internal/types"
)

// MotionActuator is the drive hardware. Wheel speeds are percentages where
// negative reverses; the steering angle is in degrees, negative steering
// left, moved at rate percent of the servo's top speed.
type MotionActuator interface {
	SetWheelSpeeds(left, right float64) error
	SetSteering(angle, rate float64) error
}

// MotionCommander folds abstract motion commands into wheel and steering
// output. Batches carry the epoch they were produced in; a batch from an
// older epoch is dropped so a reset is never overtaken by a stale step.
type MotionCommander struct {
	actuator MotionActuator
	logger   *logger.Logger

	epoch atomic.Uint64

	mu    sync.Mutex
	speed float64
	angle float64
}

func NewMotionCommander(actuator MotionActuator, l *logger.Logger) *MotionCommander {
	if l == nil {
		l = logger.NewLogger(nil, logger.LogLevelNone)
	}
	return &MotionCommander{actuator: actuator, logger: l.WithTag("motion")}
}

// Epoch returns the current dispatch epoch.
func (c *MotionCommander) Epoch() uint64 {
	return c.epoch.Load()
}

// Invalidate starts a new epoch and returns it. Batches queued under an
// older epoch will be discarded.
func (c *MotionCommander) Invalidate() uint64 {
	return c.epoch.Add(1)
}

// Dispatch sends a batch to the actuator unless its epoch is stale. It
// returns true when the batch was applied.
func (c *MotionCommander) Dispatch(epoch uint64, cmds []types.MotionCommand, rate float64) (bool, error) {
	if len(cmds) == 0 {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch.Load() {
		c.logger.Debugf("Dropping %d commands from stale epoch %d", len(cmds), epoch)
		return false, nil
	}

	steer, drive := false, false
	for _, cmd := range cmds {
		switch cmd.Kind {
		case types.MotionStop:
			c.speed = 0
			c.angle = 0
			steer, drive = true, true
		case types.MotionForward:
			c.speed = clampPercent(cmd.Speed)
			drive = true
		case types.MotionBackward:
			c.speed = -clampPercent(cmd.Speed)
			drive = true
		case types.MotionSteerLeft:
			c.angle = -abs(cmd.Angle)
			steer = true
		case types.MotionSteerRight:
			c.angle = abs(cmd.Angle)
			steer = true
		case types.MotionHoldStraight:
			c.angle = 0
			steer = true
		default:
			return false, errors.Wrapf(ErrActuator, "unknown motion command %v", cmd.Kind)
		}
		c.logger.Debugf("Command %s", cmd)
	}

	if steer {
		if err := c.actuator.SetSteering(c.angle, rate); err != nil {
			return true, errors.Wrapf(ErrActuator, "set steering %.1f: %v", c.angle, err)
		}
	}
	if drive {
		if err := c.actuator.SetWheelSpeeds(c.speed, c.speed); err != nil {
			return true, errors.Wrapf(ErrActuator, "set wheel speeds %.0f: %v", c.speed, err)
		}
	}
	return true, nil
}

// Output returns the last applied speed and steering angle.
func (c *MotionCommander) Output() (speed, angle float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed, c.angle
}

func clampPercent(v float64) float64 {
	v = abs(v)
	if v > 100 {
		return 100
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
