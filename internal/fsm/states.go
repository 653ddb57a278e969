package fsm

import (
	"github.com/librescoot/librefsm"

	"parking-service/internal/types"
)

// Parking phases
const (
	StateWaiting                librefsm.StateID = "waiting"
	StateInitialForward         librefsm.StateID = "initial-forward"
	StateFirstStop              librefsm.StateID = "first-stop"
	StateLeftTurnForward        librefsm.StateID = "left-turn-forward"
	StateSecondStop             librefsm.StateID = "second-stop"
	StateRightTurnBackward      librefsm.StateID = "right-turn-backward"
	StateStraightBackward       librefsm.StateID = "straight-backward"
	StateAlignment              librefsm.StateID = "alignment"
	StatePositionCheck          librefsm.StateID = "position-check"
	StateCorrection             librefsm.StateID = "correction"
	StatePostCorrectionBackward librefsm.StateID = "post-correction-backward"
	StateParkingCompleteStop    librefsm.StateID = "parking-complete-stop"
	StateFinalForward           librefsm.StateID = "final-forward"
	StateCompleted              librefsm.StateID = "completed"
)

// Phase events, raised by the phase machine when a predicate fires
const (
	EvBegin               librefsm.EventID = "begin"
	EvRightSideDetected   librefsm.EventID = "right-side-detected"
	EvFirstStopDone       librefsm.EventID = "first-stop-done"
	EvRearEdgeDetected    librefsm.EventID = "rear-edge-detected"
	EvSecondStopDone      librefsm.EventID = "second-stop-done"
	EvStopDistanceReached librefsm.EventID = "stop-distance-reached"
	EvStraightElapsed     librefsm.EventID = "straight-backward-elapsed"
	EvAligned             librefsm.EventID = "aligned"
	EvCorrectionNeeded    librefsm.EventID = "correction-needed"
	EvPositionAccepted    librefsm.EventID = "position-accepted"
	EvCorrectionElapsed   librefsm.EventID = "correction-elapsed"
	EvExtraBackwardDone   librefsm.EventID = "extra-backward-done"
	EvHoldElapsed         librefsm.EventID = "hold-elapsed"
	EvFinalTurnDone       librefsm.EventID = "final-turn-done"
)

var phaseStates = map[types.Phase]librefsm.StateID{
	types.PhaseWaiting:                StateWaiting,
	types.PhaseInitialForward:         StateInitialForward,
	types.PhaseFirstStop:              StateFirstStop,
	types.PhaseLeftTurnForward:        StateLeftTurnForward,
	types.PhaseSecondStop:             StateSecondStop,
	types.PhaseRightTurnBackward:      StateRightTurnBackward,
	types.PhaseStraightBackward:       StateStraightBackward,
	types.PhaseAlignment:              StateAlignment,
	types.PhasePositionCheck:          StatePositionCheck,
	types.PhaseCorrection:             StateCorrection,
	types.PhasePostCorrectionBackward: StatePostCorrectionBackward,
	types.PhaseParkingCompleteStop:    StateParkingCompleteStop,
	types.PhaseFinalForward:           StateFinalForward,
	types.PhaseCompleted:              StateCompleted,
}

// StateForPhase converts a phase to its librefsm state id.
func StateForPhase(p types.Phase) librefsm.StateID {
	if id, ok := phaseStates[p]; ok {
		return id
	}
	return librefsm.StateID(p.String())
}

// PhaseForState converts a librefsm state id back to a phase.
func PhaseForState(id librefsm.StateID) (types.Phase, bool) {
	for p, s := range phaseStates {
		if s == id {
			return p, true
		}
	}
	return types.PhaseWaiting, false
}
