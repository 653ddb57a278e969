package hardware

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"

	"parking-service/internal/logger"
)

const (
	servoRawMax = 4095
	// full lock to lock at 100% rate
	servoSweepTime = 300 * time.Millisecond
	servoTimeout   = 200 * time.Millisecond
)

// Steering positions an STS bus servo on the front axle.
type Steering struct {
	logger *logger.Logger
	bus    *feetech.Bus
	group  *feetech.ServoGroup
	servo  *feetech.Servo

	id       int
	center   int
	perDeg   float64
	maxAngle float64

	mu    sync.Mutex
	angle float64
}

func NewSteering(cfg Config, l *logger.Logger) (*Steering, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.ServoPort,
		BaudRate: ServoBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open servo bus %s", cfg.ServoPort)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	found, err := bus.Scan(ctx, cfg.ServoID, cfg.ServoID)
	if err != nil {
		bus.Close()
		return nil, errors.Wrap(err, "scan servo bus")
	}
	if len(found) == 0 {
		bus.Close()
		return nil, errors.Errorf("no steering servo with id %d on %s", cfg.ServoID, cfg.ServoPort)
	}

	s := &Steering{
		logger:   l.WithTag("steering"),
		bus:      bus,
		group:    feetech.NewServoGroupByIDs(bus, cfg.ServoID),
		servo:    feetech.NewServo(bus, found[0].ID, found[0].Model),
		id:       cfg.ServoID,
		center:   cfg.ServoCenter,
		perDeg:   cfg.ServoStepsPerDegree,
		maxAngle: cfg.ServoMaxAngle,
	}

	if err := s.group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, errors.Wrap(err, "enable steering torque")
	}
	if err := s.group.SetPositions(ctx, feetech.PositionMap{s.id: s.center}); err != nil {
		bus.Close()
		return nil, errors.Wrap(err, "center steering")
	}
	s.logger.Infof("Steering servo %d ready on %s (center %d)", s.id, cfg.ServoPort, s.center)
	return s, nil
}

// RawPosition maps a steering angle in degrees (negative left) onto the
// servo's 12 bit position range.
func RawPosition(angle, center, perDeg, maxAngle float64) int {
	if maxAngle > 0 {
		angle = math.Max(-maxAngle, math.Min(maxAngle, angle))
	}
	raw := int(math.Round(center + angle*perDeg))
	if raw < 0 {
		return 0
	}
	if raw > servoRawMax {
		return servoRawMax
	}
	return raw
}

// MoveTime is the time budget for a swing of delta degrees at rate percent.
// A zero result means move at full speed.
func MoveTime(delta, rate, maxAngle float64) int {
	if rate <= 0 || rate >= 100 || maxAngle <= 0 {
		return 0
	}
	span := math.Abs(delta) / (2 * maxAngle)
	ms := float64(servoSweepTime.Milliseconds()) * span * 100 / rate
	return int(math.Round(ms))
}

// SetSteering moves the wheels to angle degrees at rate percent of the
// servo's top speed.
func (s *Steering) SetSteering(angle, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), servoTimeout)
	defer cancel()

	raw := RawPosition(angle, float64(s.center), s.perDeg, s.maxAngle)
	if ms := MoveTime(angle-s.angle, rate, s.maxAngle); ms > 0 {
		if err := s.servo.SetPositionWithTime(ctx, raw, ms); err != nil {
			return errors.Wrapf(err, "steer to %.1f", angle)
		}
	} else if err := s.group.SetPositions(ctx, feetech.PositionMap{s.id: raw}); err != nil {
		return errors.Wrapf(err, "steer to %.1f", angle)
	}
	s.angle = angle
	s.logger.Debugf("Steering %.1f deg (raw %d)", angle, raw)
	return nil
}

// Close centers the wheels and releases torque.
func (s *Steering) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.group.SetPositions(ctx, feetech.PositionMap{s.id: s.center}); err != nil {
		s.logger.Warnf("Failed to center steering: %v", err)
	}
	if err := s.group.DisableAll(ctx); err != nil {
		s.logger.Warnf("Failed to release steering torque: %v", err)
	}
	return s.bus.Close()
}

// Actuator pairs the drive motors with the steering servo.
type Actuator struct {
	*Motors
	*Steering
}

func (a *Actuator) Close() error {
	var first error
	if a.Steering != nil {
		first = a.Steering.Close()
	}
	if a.Motors != nil {
		if err := a.Motors.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
