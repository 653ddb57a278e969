package parking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sync"
)

// ParkingConfig holds the maneuver parameters. Speeds are percentages,
// angles degrees (negative is left), distances centimetres and durations
// seconds.
type ParkingConfig struct {
	ForwardSpeed               float64 `json:"forward_speed" yaml:"forward_speed"`
	BackwardSpeed              float64 `json:"backward_speed" yaml:"backward_speed"`
	SteeringSpeed              float64 `json:"steering_speed" yaml:"steering_speed"`
	LeftTurnAngle              float64 `json:"left_turn_angle" yaml:"left_turn_angle"`
	RightTurnAngle             float64 `json:"right_turn_angle" yaml:"right_turn_angle"`
	CorrectionAngle            float64 `json:"correction_angle" yaml:"correction_angle"`
	AlignmentAngle             float64 `json:"alignment_angle" yaml:"alignment_angle"`
	FinalRightTurnAngle        float64 `json:"final_right_turn_angle" yaml:"final_right_turn_angle"`
	StopDistance               float64 `json:"stop_distance" yaml:"stop_distance"`
	AlignmentTolerance         float64 `json:"alignment_tolerance" yaml:"alignment_tolerance"`
	CorrectionThreshold        float64 `json:"correction_threshold" yaml:"correction_threshold"`
	StraightBackwardDuration   float64 `json:"straight_backward_duration" yaml:"straight_backward_duration"`
	CorrectionDuration         float64 `json:"correction_duration" yaml:"correction_duration"`
	ParkingStopDuration        float64 `json:"parking_stop_duration" yaml:"parking_stop_duration"`
	RightTurnDuration          float64 `json:"right_turn_duration" yaml:"right_turn_duration"`
	RightTurnRampDuration      float64 `json:"right_turn_ramp_duration" yaml:"right_turn_ramp_duration"`
	AdditionalBackwardDuration float64 `json:"additional_backward_duration" yaml:"additional_backward_duration"`
}

// Edge thresholds are fixed by sensor geometry, not tuning.
const (
	lateralRiseThreshold    = 5.0
	secondStopRiseThreshold = 10.0
	finalTurnRiseThreshold  = 15.0
)

func DefaultParkingConfig() ParkingConfig {
	return ParkingConfig{
		ForwardSpeed:               30,
		BackwardSpeed:              25,
		SteeringSpeed:              50,
		LeftTurnAngle:              -20,
		RightTurnAngle:             13,
		CorrectionAngle:            15,
		AlignmentAngle:             10,
		FinalRightTurnAngle:        20,
		StopDistance:               40,
		AlignmentTolerance:         3,
		CorrectionThreshold:        10,
		StraightBackwardDuration:   0.3,
		CorrectionDuration:         2.0,
		ParkingStopDuration:        2.0,
		RightTurnDuration:          1.5,
		RightTurnRampDuration:      2.0,
		AdditionalBackwardDuration: 0.5,
	}
}

// ParkingConfigPatch is a partial update. Nil fields keep their value.
type ParkingConfigPatch struct {
	ForwardSpeed               *float64 `json:"forward_speed,omitempty" yaml:"forward_speed,omitempty"`
	BackwardSpeed              *float64 `json:"backward_speed,omitempty" yaml:"backward_speed,omitempty"`
	SteeringSpeed              *float64 `json:"steering_speed,omitempty" yaml:"steering_speed,omitempty"`
	LeftTurnAngle              *float64 `json:"left_turn_angle,omitempty" yaml:"left_turn_angle,omitempty"`
	RightTurnAngle             *float64 `json:"right_turn_angle,omitempty" yaml:"right_turn_angle,omitempty"`
	CorrectionAngle            *float64 `json:"correction_angle,omitempty" yaml:"correction_angle,omitempty"`
	AlignmentAngle             *float64 `json:"alignment_angle,omitempty" yaml:"alignment_angle,omitempty"`
	FinalRightTurnAngle        *float64 `json:"final_right_turn_angle,omitempty" yaml:"final_right_turn_angle,omitempty"`
	StopDistance               *float64 `json:"stop_distance,omitempty" yaml:"stop_distance,omitempty"`
	AlignmentTolerance         *float64 `json:"alignment_tolerance,omitempty" yaml:"alignment_tolerance,omitempty"`
	CorrectionThreshold        *float64 `json:"correction_threshold,omitempty" yaml:"correction_threshold,omitempty"`
	StraightBackwardDuration   *float64 `json:"straight_backward_duration,omitempty" yaml:"straight_backward_duration,omitempty"`
	CorrectionDuration         *float64 `json:"correction_duration,omitempty" yaml:"correction_duration,omitempty"`
	ParkingStopDuration        *float64 `json:"parking_stop_duration,omitempty" yaml:"parking_stop_duration,omitempty"`
	RightTurnDuration          *float64 `json:"right_turn_duration,omitempty" yaml:"right_turn_duration,omitempty"`
	RightTurnRampDuration      *float64 `json:"right_turn_ramp_duration,omitempty" yaml:"right_turn_ramp_duration,omitempty"`
	AdditionalBackwardDuration *float64 `json:"additional_backward_duration,omitempty" yaml:"additional_backward_duration,omitempty"`
}

// ParsePatch decodes a JSON patch and rejects unknown keys.
func ParsePatch(data []byte) (ParkingConfigPatch, error) {
	var p ParkingConfigPatch
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, &ConfigError{Field: "patch", Value: string(data), Reason: err.Error()}
	}
	return p, nil
}

type fieldRule struct {
	name     string
	value    *float64
	min, max float64
	// open lower bound, used for durations
	exclusiveMin bool
}

func (p *ParkingConfigPatch) rules() []fieldRule {
	const maxDistance = 1000
	return []fieldRule{
		{"forward_speed", p.ForwardSpeed, 0, 100, false},
		{"backward_speed", p.BackwardSpeed, 0, 100, false},
		{"steering_speed", p.SteeringSpeed, 0, 100, false},
		{"left_turn_angle", p.LeftTurnAngle, -90, 90, false},
		{"right_turn_angle", p.RightTurnAngle, 0, 90, false},
		{"correction_angle", p.CorrectionAngle, -90, 90, false},
		{"alignment_angle", p.AlignmentAngle, 0, 90, false},
		{"final_right_turn_angle", p.FinalRightTurnAngle, 0, 90, false},
		{"stop_distance", p.StopDistance, 0, maxDistance, true},
		{"alignment_tolerance", p.AlignmentTolerance, 0, maxDistance, false},
		{"correction_threshold", p.CorrectionThreshold, 0, maxDistance, false},
		{"straight_backward_duration", p.StraightBackwardDuration, 0, 60, true},
		{"correction_duration", p.CorrectionDuration, 0, 60, true},
		{"parking_stop_duration", p.ParkingStopDuration, 0, 60, true},
		{"right_turn_duration", p.RightTurnDuration, 0, 60, true},
		{"right_turn_ramp_duration", p.RightTurnRampDuration, 0, 60, true},
		{"additional_backward_duration", p.AdditionalBackwardDuration, 0, 60, true},
	}
}

// Validate checks every set field and returns a *ConfigError for the first
// one out of range.
func (p ParkingConfigPatch) Validate() error {
	for _, r := range p.rules() {
		if r.value == nil {
			continue
		}
		v := *r.value
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			return &ConfigError{Field: r.name, Value: v, Reason: "is not a finite number"}
		case r.exclusiveMin && v <= r.min:
			return &ConfigError{Field: r.name, Value: v, Reason: "must be greater than 0"}
		case v < r.min || v > r.max:
			return &ConfigError{Field: r.name, Value: v, Reason: rangeReason(r.min, r.max)}
		}
	}
	return nil
}

func rangeReason(lo, hi float64) string {
	return fmt.Sprintf("must be within [%g, %g]", lo, hi)
}

// Empty reports whether the patch sets no field.
func (p ParkingConfigPatch) Empty() bool {
	for _, r := range p.rules() {
		if r.value != nil {
			return false
		}
	}
	return true
}

// Apply validates the patch and returns the merged config. On error the
// input config is returned unchanged.
func (c ParkingConfig) Apply(p ParkingConfigPatch) (ParkingConfig, error) {
	if err := p.Validate(); err != nil {
		return c, err
	}
	out := c
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&out.ForwardSpeed, p.ForwardSpeed)
	set(&out.BackwardSpeed, p.BackwardSpeed)
	set(&out.SteeringSpeed, p.SteeringSpeed)
	set(&out.LeftTurnAngle, p.LeftTurnAngle)
	set(&out.RightTurnAngle, p.RightTurnAngle)
	set(&out.CorrectionAngle, p.CorrectionAngle)
	set(&out.AlignmentAngle, p.AlignmentAngle)
	set(&out.FinalRightTurnAngle, p.FinalRightTurnAngle)
	set(&out.StopDistance, p.StopDistance)
	set(&out.AlignmentTolerance, p.AlignmentTolerance)
	set(&out.CorrectionThreshold, p.CorrectionThreshold)
	set(&out.StraightBackwardDuration, p.StraightBackwardDuration)
	set(&out.CorrectionDuration, p.CorrectionDuration)
	set(&out.ParkingStopDuration, p.ParkingStopDuration)
	set(&out.RightTurnDuration, p.RightTurnDuration)
	set(&out.RightTurnRampDuration, p.RightTurnRampDuration)
	set(&out.AdditionalBackwardDuration, p.AdditionalBackwardDuration)
	return out, nil
}

// Validate checks a complete config by treating every field as set.
func (c ParkingConfig) Validate() error {
	return c.AsPatch().Validate()
}

// AsPatch returns a patch that sets every field to the value in c.
func (c ParkingConfig) AsPatch() ParkingConfigPatch {
	v := c
	return ParkingConfigPatch{
		ForwardSpeed:               &v.ForwardSpeed,
		BackwardSpeed:              &v.BackwardSpeed,
		SteeringSpeed:              &v.SteeringSpeed,
		LeftTurnAngle:              &v.LeftTurnAngle,
		RightTurnAngle:             &v.RightTurnAngle,
		CorrectionAngle:            &v.CorrectionAngle,
		AlignmentAngle:             &v.AlignmentAngle,
		FinalRightTurnAngle:        &v.FinalRightTurnAngle,
		StopDistance:               &v.StopDistance,
		AlignmentTolerance:         &v.AlignmentTolerance,
		CorrectionThreshold:        &v.CorrectionThreshold,
		StraightBackwardDuration:   &v.StraightBackwardDuration,
		CorrectionDuration:         &v.CorrectionDuration,
		ParkingStopDuration:        &v.ParkingStopDuration,
		RightTurnDuration:          &v.RightTurnDuration,
		RightTurnRampDuration:      &v.RightTurnRampDuration,
		AdditionalBackwardDuration: &v.AdditionalBackwardDuration,
	}
}

// ConfigProvider supplies the initial parking config and persists accepted
// runtime overrides.
type ConfigProvider interface {
	ParkingConfig() ParkingConfig
	StoreParkingConfig(ParkingConfig) error
}

// StaticConfig is a ConfigProvider that keeps the config in memory.
type StaticConfig struct {
	mu     sync.Mutex
	Config ParkingConfig
}

func (s *StaticConfig) ParkingConfig() ParkingConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Config
}

func (s *StaticConfig) StoreParkingConfig(c ParkingConfig) error {
	s.mu.Lock()
	s.Config = c
	s.mu.Unlock()
	return nil
}
