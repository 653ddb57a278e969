package parking

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"

	"parking-service/internal/types"
)

var (
	// ErrInvalidConfigValue is returned when a configuration update carries an
	// out-of-range or malformed value. The whole update is rejected.
	ErrInvalidConfigValue = errors.New("invalid parking config value")

	// ErrUnexpectedStep wraps any fault raised while executing a phase.
	ErrUnexpectedStep = errors.New("unexpected parking step error")

	// ErrSensorRead is returned by sensor arrays for a single failed sensor.
	ErrSensorRead = errors.New("sensor read failed")

	// ErrActuator is returned when the actuator rejects a motion command.
	ErrActuator = errors.New("actuator command failed")
)

// ConfigError describes the first invalid field of a rejected update.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s=%v %s", ErrInvalidConfigValue, e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfigValue }

// StepError is returned by Step after the machine aborted to a safe stop.
type StepError struct {
	Phase types.Phase
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("parking step aborted in %s: %v", e.Phase, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnexpectedStep) match every step abort.
func (e *StepError) Is(target error) bool {
	return target == ErrUnexpectedStep
}

// SensorError reports a failed read for a single named sensor.
type SensorError struct {
	Sensor types.SensorName
	Err    error
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSensorRead, e.Sensor, e.Err)
}

func (e *SensorError) Unwrap() error { return e.Err }

func (e *SensorError) Is(target error) bool {
	return target == ErrSensorRead
}

// JoinSensorErrors combines per-sensor read failures. It returns nil for an
// empty list.
func JoinSensorErrors(errs []error) error {
	return stderrors.Join(errs...)
}
