package hardware

import (
	"context"

	"github.com/pkg/errors"

	"parking-service/internal/logger"
	"parking-service/internal/types"
)

// RangeSource is what the service reads distances from.
type RangeSource interface {
	Read(ctx context.Context) (map[types.SensorName]float64, error)
	Close() error
}

// OpenRangeSource opens the ranger selected by cfg.Sensors. "redis" is
// served by the messaging layer and is not handled here.
func OpenRangeSource(cfg Config, l *logger.Logger) (RangeSource, error) {
	switch cfg.Sensors {
	case "", "gpio":
		return NewUltrasonicArray(cfg, l)
	case "serial":
		return NewSerialRangeBridge(cfg.SerialPort, l)
	}
	return nil, errors.Errorf("unknown sensor source %q", cfg.Sensors)
}

// OpenActuator opens the drive motors and the steering servo.
func OpenActuator(cfg Config, l *logger.Logger) (*Actuator, error) {
	motors, err := NewMotors(cfg, l)
	if err != nil {
		return nil, err
	}
	steering, err := NewSteering(cfg, l)
	if err != nil {
		motors.Close()
		return nil, err
	}
	return &Actuator{Motors: motors, Steering: steering}, nil
}
