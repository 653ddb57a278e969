package fsm

import (
	"github.com/librescoot/librefsm"

	"parking-service/internal/types"
)

// Actions receives phase entry notifications from the librefsm machine.
// Callbacks run on the FSM goroutine while the phase machine may still hold
// its own lock, so implementations must not call back into it.
type Actions interface {
	EnterPhase(c *librefsm.Context, phase types.Phase) error
}

// ActionsFunc adapts a plain function to Actions.
type ActionsFunc func(phase types.Phase)

func (f ActionsFunc) EnterPhase(_ *librefsm.Context, phase types.Phase) error {
	f(phase)
	return nil
}
