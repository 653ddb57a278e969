package fsm

import (
	"github.com/librescoot/librefsm"

	"parking-service/internal/types"
)

// Edge is one permitted phase transition.
type Edge struct {
	From  types.Phase
	Event librefsm.EventID
	To    types.Phase
}

// Transitions is the complete parking transition table. Every edge moves
// strictly forward in phase order; reset is the only way back to WAITING
// and bypasses the table.
var Transitions = []Edge{
	{types.PhaseWaiting, EvBegin, types.PhaseInitialForward},
	{types.PhaseInitialForward, EvRightSideDetected, types.PhaseFirstStop},
	{types.PhaseFirstStop, EvFirstStopDone, types.PhaseLeftTurnForward},
	{types.PhaseLeftTurnForward, EvRearEdgeDetected, types.PhaseSecondStop},
	{types.PhaseSecondStop, EvSecondStopDone, types.PhaseRightTurnBackward},
	{types.PhaseRightTurnBackward, EvStopDistanceReached, types.PhaseStraightBackward},
	{types.PhaseStraightBackward, EvStraightElapsed, types.PhaseAlignment},
	{types.PhaseAlignment, EvAligned, types.PhasePositionCheck},
	{types.PhasePositionCheck, EvCorrectionNeeded, types.PhaseCorrection},
	{types.PhasePositionCheck, EvPositionAccepted, types.PhaseParkingCompleteStop},
	{types.PhaseCorrection, EvCorrectionElapsed, types.PhasePostCorrectionBackward},
	{types.PhasePostCorrectionBackward, EvExtraBackwardDone, types.PhaseParkingCompleteStop},
	{types.PhaseParkingCompleteStop, EvHoldElapsed, types.PhaseFinalForward},
	{types.PhaseFinalForward, EvFinalTurnDone, types.PhaseCompleted},
}

// Lookup returns the target phase for an event raised in phase from.
func Lookup(from types.Phase, ev librefsm.EventID) (types.Phase, bool) {
	for _, e := range Transitions {
		if e.From == from && e.Event == ev {
			return e.To, true
		}
	}
	return from, false
}

// NewDefinition creates the parking FSM definition from the transition table.
// The actions parameter is notified on every phase entry.
func NewDefinition(actions Actions) *librefsm.Definition {
	def := librefsm.NewDefinition()

	for _, p := range types.AllPhases() {
		phase := p
		if actions == nil {
			def = def.State(StateForPhase(phase))
			continue
		}
		def = def.State(StateForPhase(phase),
			librefsm.WithOnEnter(func(c *librefsm.Context) error {
				return actions.EnterPhase(c, phase)
			}),
		)
	}

	for _, e := range Transitions {
		def = def.Transition(StateForPhase(e.From), e.Event, StateForPhase(e.To))
	}

	return def.Initial(StateWaiting)
}
