package messaging

import (
	"errors"
	"testing"

	"parking-service/internal/logger"
	"parking-service/internal/parking"
	"parking-service/internal/types"
)

func TestParseSensorFields(t *testing.T) {
	got, err := ParseSensorFields(map[string]string{
		"ultrasonic_0": "42.5",
		"ultrasonic_1": "-3",
		"ultrasonic_2": "banana",
		"ultrasonic_4": "100",
	})

	if got[types.FrontRight] != 42.5 {
		t.Errorf("front_right = %v", got[types.FrontRight])
	}
	if got[types.MiddleLeft] != 0 {
		t.Errorf("negative reading not clamped: %v", got[types.MiddleLeft])
	}
	if _, ok := got[types.MiddleRight]; ok {
		t.Error("malformed reading returned")
	}
	if _, ok := got[types.RearLeft]; ok {
		t.Error("missing reading returned")
	}
	if got[types.RearRight] != 100 {
		t.Errorf("rear_right = %v", got[types.RearRight])
	}

	if !errors.Is(err, parking.ErrSensorRead) {
		t.Fatalf("err = %v, want ErrSensorRead", err)
	}
	var sensorErr *parking.SensorError
	if !errors.As(err, &sensorErr) || sensorErr.Sensor != types.MiddleRight {
		t.Errorf("first sensor error = %v", sensorErr)
	}
}

func TestParseSensorFieldsComplete(t *testing.T) {
	fields := map[string]string{}
	for _, name := range types.AllSensors() {
		fields[name.Channel()] = "55"
	}
	got, err := ParseSensorFields(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("got %d readings", len(got))
	}
}

func TestHandleCommandRouting(t *testing.T) {
	var received []string
	r := NewRedisClient("localhost", 6379, logger.NewLogger(nil, logger.LogLevelNone), Callbacks{
		CommandCallback: func(cmd string) error {
			received = append(received, cmd)
			return nil
		},
	})
	defer r.client.Close()

	for _, cmd := range []string{"start", "stop", "reset", "emergency-stop"} {
		if err := r.handleCommand(cmd); err != nil {
			t.Errorf("handleCommand(%q) = %v", cmd, err)
		}
	}
	if err := r.handleCommand("launch"); err == nil {
		t.Error("unknown command accepted")
	}
	if len(received) != 4 {
		t.Errorf("callback received %v", received)
	}
}

func TestHandleConfigWithoutCallback(t *testing.T) {
	r := NewRedisClient("localhost", 6379, logger.NewLogger(nil, logger.LogLevelNone), Callbacks{})
	defer r.client.Close()
	if err := r.handleConfig(`{"stop_distance":35}`); err != nil {
		t.Errorf("handleConfig = %v", err)
	}
}
