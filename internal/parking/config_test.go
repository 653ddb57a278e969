package parking

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultParkingConfigIsValid(t *testing.T) {
	if err := DefaultParkingConfig().Validate(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
}

func TestParkingConfigApply(t *testing.T) {
	base := DefaultParkingConfig()
	stop := 35.0
	got, err := base.Apply(ParkingConfigPatch{StopDistance: &stop})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := base
	want.StopDistance = 35
	if got != want {
		t.Errorf("Apply = %+v, want %+v", got, want)
	}
}

func TestParkingConfigPatchValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		name  string
		patch ParkingConfigPatch
		field string
	}{
		{"speed above 100", ParkingConfigPatch{ForwardSpeed: f(120)}, "forward_speed"},
		{"negative speed", ParkingConfigPatch{BackwardSpeed: f(-1)}, "backward_speed"},
		{"angle out of range", ParkingConfigPatch{LeftTurnAngle: f(-91)}, "left_turn_angle"},
		{"negative distance", ParkingConfigPatch{StopDistance: f(-5)}, "stop_distance"},
		{"unreachable stop distance", ParkingConfigPatch{StopDistance: f(0)}, "stop_distance"},
		{"right turn steering left", ParkingConfigPatch{RightTurnAngle: f(-13)}, "right_turn_angle"},
		{"final right turn steering left", ParkingConfigPatch{FinalRightTurnAngle: f(-20)}, "final_right_turn_angle"},
		{"negative alignment angle", ParkingConfigPatch{AlignmentAngle: f(-10)}, "alignment_angle"},
		{"zero duration", ParkingConfigPatch{CorrectionDuration: f(0)}, "correction_duration"},
		{"long duration", ParkingConfigPatch{ParkingStopDuration: f(61)}, "parking_stop_duration"},
		{"NaN", ParkingConfigPatch{CorrectionThreshold: f(math.NaN())}, "correction_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %s, want %s", cfgErr.Field, tt.field)
			}
			if !errors.Is(err, ErrInvalidConfigValue) {
				t.Error("error does not match ErrInvalidConfigValue")
			}
		})
	}

	if err := (ParkingConfigPatch{AlignmentTolerance: f(0)}).Validate(); err != nil {
		t.Errorf("zero tolerance rejected: %v", err)
	}
	if err := (ParkingConfigPatch{RightTurnAngle: f(0), AlignmentAngle: f(90), LeftTurnAngle: f(-90)}).Validate(); err != nil {
		t.Errorf("boundary angles rejected: %v", err)
	}
}

func TestParsePatch(t *testing.T) {
	p, err := ParsePatch([]byte(`{"stop_distance": 35, "alignment_tolerance": 0}`))
	if err != nil {
		t.Fatalf("ParsePatch: %v", err)
	}
	if p.StopDistance == nil || *p.StopDistance != 35 {
		t.Errorf("stop_distance = %v", p.StopDistance)
	}
	if p.AlignmentTolerance == nil || *p.AlignmentTolerance != 0 {
		t.Errorf("alignment_tolerance = %v", p.AlignmentTolerance)
	}
	if p.ForwardSpeed != nil {
		t.Error("unset field decoded")
	}

	if _, err := ParsePatch([]byte(`{"stop_distanse": 35}`)); !errors.Is(err, ErrInvalidConfigValue) {
		t.Errorf("unknown key: err = %v", err)
	}
	if _, err := ParsePatch([]byte(`{"stop_distance": "far"}`)); !errors.Is(err, ErrInvalidConfigValue) {
		t.Errorf("malformed value: err = %v", err)
	}
}

func TestPatchEmpty(t *testing.T) {
	if !(ParkingConfigPatch{}).Empty() {
		t.Error("zero patch not empty")
	}
	v := 1.0
	if (ParkingConfigPatch{RightTurnDuration: &v}).Empty() {
		t.Error("patch with a field reported empty")
	}
}
