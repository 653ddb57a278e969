package types

import "fmt"

// Phase is one step of the parking maneuver. The numeric value is the
// phase ordinal reported in status snapshots.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseInitialForward
	PhaseFirstStop
	PhaseLeftTurnForward
	PhaseSecondStop
	PhaseRightTurnBackward
	PhaseStraightBackward
	PhaseAlignment
	PhasePositionCheck
	PhaseCorrection
	PhasePostCorrectionBackward
	PhaseParkingCompleteStop
	PhaseFinalForward
	PhaseCompleted
)

var phaseNames = [...]string{
	PhaseWaiting:                "WAITING",
	PhaseInitialForward:         "INITIAL_FORWARD",
	PhaseFirstStop:              "FIRST_STOP",
	PhaseLeftTurnForward:        "LEFT_TURN_FORWARD",
	PhaseSecondStop:             "SECOND_STOP",
	PhaseRightTurnBackward:      "RIGHT_TURN_BACKWARD",
	PhaseStraightBackward:       "STRAIGHT_BACKWARD",
	PhaseAlignment:              "ALIGNMENT",
	PhasePositionCheck:          "POSITION_CHECK",
	PhaseCorrection:             "CORRECTION",
	PhasePostCorrectionBackward: "POST_CORRECTION_BACKWARD",
	PhaseParkingCompleteStop:    "PARKING_COMPLETE_STOP",
	PhaseFinalForward:           "FINAL_FORWARD",
	PhaseCompleted:              "COMPLETED",
}

// AllPhases returns every phase in maneuver order.
func AllPhases() []Phase {
	phases := make([]Phase, 0, len(phaseNames))
	for p := PhaseWaiting; p <= PhaseCompleted; p++ {
		phases = append(phases, p)
	}
	return phases
}

func (p Phase) String() string {
	if p < PhaseWaiting || p > PhaseCompleted {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) Valid() bool {
	return p >= PhaseWaiting && p <= PhaseCompleted
}

// ParsePhase converts a phase name back into a Phase.
func ParsePhase(name string) (Phase, error) {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}
	return PhaseWaiting, fmt.Errorf("unknown phase %q", name)
}

// SensorName identifies one of the five ultrasonic sensors by mounting position.
type SensorName string

const (
	FrontRight  SensorName = "front_right"
	MiddleLeft  SensorName = "middle_left"
	MiddleRight SensorName = "middle_right"
	RearLeft    SensorName = "rear_left"
	RearRight   SensorName = "rear_right"
)

// SentinelDistance is reported for a sensor that has never produced a reading.
const SentinelDistance = 100.0

// AllSensors returns the sensor names in hardware channel order
// (ultrasonic_0 .. ultrasonic_4).
func AllSensors() []SensorName {
	return []SensorName{FrontRight, MiddleLeft, MiddleRight, RearLeft, RearRight}
}

// DetectionSensors are the right-side sensors that must each see the
// neighbouring car's edge before the first stop.
func DetectionSensors() []SensorName {
	return []SensorName{FrontRight, MiddleRight, RearRight}
}

func (s SensorName) Valid() bool {
	switch s {
	case FrontRight, MiddleLeft, MiddleRight, RearLeft, RearRight:
		return true
	}
	return false
}

// Channel returns the hardware channel id the sensor is wired to.
func (s SensorName) Channel() string {
	for i, n := range AllSensors() {
		if n == s {
			return fmt.Sprintf("ultrasonic_%d", i)
		}
	}
	return ""
}

// BiasSide records which side the vehicle drifted to inside the bay.
type BiasSide string

const (
	BiasNone  BiasSide = ""
	BiasLeft  BiasSide = "left-biased"
	BiasRight BiasSide = "right-biased"
)

// Status is an immutable snapshot of the parking state for monitoring.
type Status struct {
	AttemptID       string                 `json:"attempt_id,omitempty"`
	Phase           string                 `json:"phase"`
	PhaseOrdinal    int                    `json:"phase_number"`
	Message         string                 `json:"status_message"`
	Active          bool                   `json:"is_active"`
	Completed       bool                   `json:"is_completed"`
	Bias            BiasSide               `json:"bias,omitempty"`
	SensorDistances map[SensorName]float64 `json:"sensor_distances"`
	SensorFlags     map[SensorName]bool    `json:"sensor_flags"`
}
