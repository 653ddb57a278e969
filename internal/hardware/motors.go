package hardware

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"

	"parking-service/internal/logger"
)

type outputLine interface {
	SetValue(value int) error
	Close() error
}

type dutyOutput interface {
	SetDutyPercent(pct float64) error
	Close() error
}

type wheel struct {
	name      string
	direction outputLine
	pwm       dutyOutput
	reverse   bool
	speed     float64
}

func (w *wheel) set(pct float64) error {
	if pct == w.speed {
		return nil
	}
	reverse := pct < 0
	if reverse != w.reverse || w.speed == 0 {
		// drop to zero before flipping the H-bridge
		if err := w.pwm.SetDutyPercent(0); err != nil {
			return err
		}
		val := 0
		if reverse {
			val = 1
		}
		if err := w.direction.SetValue(val); err != nil {
			return errors.Wrapf(err, "failed to set %s direction", w.name)
		}
		w.reverse = reverse
	}
	duty := pct
	if duty < 0 {
		duty = -duty
	}
	if err := w.pwm.SetDutyPercent(duty); err != nil {
		return errors.Wrapf(err, "failed to set %s duty", w.name)
	}
	w.speed = pct
	return nil
}

// Motors drives the two rear wheels through an H-bridge: a GPIO line picks
// the direction and a PWM channel sets the duty.
type Motors struct {
	logger *logger.Logger
	chips  map[int]*gpiocdev.Chip
	mu     sync.Mutex
	left   *wheel
	right  *wheel
}

func NewMotors(cfg Config, l *logger.Logger) (*Motors, error) {
	m := &Motors{
		logger: l.WithTag("motors"),
		chips:  make(map[int]*gpiocdev.Chip),
	}

	var err error
	if m.left, err = m.openWheel("left", cfg.LeftWheel); err != nil {
		m.Close()
		return nil, err
	}
	if m.right, err = m.openWheel("right", cfg.RightWheel); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func newMotorsFrom(l *logger.Logger, left, right *wheel) *Motors {
	return &Motors{logger: l.WithTag("motors"), chips: map[int]*gpiocdev.Chip{}, left: left, right: right}
}

func (m *Motors) openWheel(name string, pins WheelPins) (*wheel, error) {
	chip, ok := m.chips[pins.Direction.Chip]
	if !ok {
		var err error
		chip, err = gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", pins.Direction.Chip))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open GPIO chip %d", pins.Direction.Chip)
		}
		m.chips[pins.Direction.Chip] = chip
	}

	line, err := chip.RequestLine(pins.Direction.Line,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to request GPIO line %d", pins.Direction.Line)
	}

	pwm, err := OpenPwmChannel(PwmSysfsRoot, pins.PwmChip, pins.PwmChannel, PwmPeriodNs)
	if err != nil {
		line.Close()
		return nil, err
	}

	m.logger.Infof("Configured %s wheel: chip=%d, line=%d, pwm=%d/%d",
		name, pins.Direction.Chip, pins.Direction.Line, pins.PwmChip, pins.PwmChannel)
	return &wheel{name: name, direction: line, pwm: pwm}, nil
}

// SetWheelSpeeds sets both wheels in percent; negative reverses.
func (m *Motors) SetWheelSpeeds(left, right float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.left.set(left); err != nil {
		return err
	}
	if err := m.right.set(right); err != nil {
		return err
	}
	m.logger.Debugf("Wheels left=%.0f right=%.0f", left, right)
	return nil
}

func (m *Motors) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range []*wheel{m.left, m.right} {
		if w == nil {
			continue
		}
		if err := w.pwm.Close(); err != nil {
			m.logger.Warnf("Failed to stop %s wheel: %v", w.name, err)
		}
		w.direction.Close()
	}
	for id, chip := range m.chips {
		chip.Close()
		m.logger.Debugf("Closed GPIO chip %d", id)
	}
	return nil
}
