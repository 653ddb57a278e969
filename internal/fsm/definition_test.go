package fsm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/librescoot/librefsm"

	"parking-service/internal/types"
)

func TestTransitionsMoveForward(t *testing.T) {
	for _, e := range Transitions {
		if e.To <= e.From {
			t.Errorf("edge %s -%s-> %s does not move forward", e.From, e.Event, e.To)
		}
	}
}

func TestEveryPhaseReachable(t *testing.T) {
	reached := map[types.Phase]bool{types.PhaseWaiting: true}
	for _, e := range Transitions {
		reached[e.To] = true
	}
	for _, p := range types.AllPhases() {
		if !reached[p] {
			t.Errorf("phase %s is not reachable", p)
		}
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	for _, e := range Transitions {
		if e.From == types.PhaseCompleted {
			t.Errorf("COMPLETED has outgoing edge %s", e.Event)
		}
	}
}

func TestStatePhaseRoundTrip(t *testing.T) {
	for _, p := range types.AllPhases() {
		got, ok := PhaseForState(StateForPhase(p))
		if !ok || got != p {
			t.Errorf("PhaseForState(StateForPhase(%s)) = %s, %v", p, got, ok)
		}
	}
}

func TestTableTrackerHappyPath(t *testing.T) {
	tr := NewTableTracker()
	path := []struct {
		ev   librefsm.EventID
		want types.Phase
	}{
		{EvBegin, types.PhaseInitialForward},
		{EvRightSideDetected, types.PhaseFirstStop},
		{EvFirstStopDone, types.PhaseLeftTurnForward},
		{EvRearEdgeDetected, types.PhaseSecondStop},
		{EvSecondStopDone, types.PhaseRightTurnBackward},
		{EvStopDistanceReached, types.PhaseStraightBackward},
		{EvStraightElapsed, types.PhaseAlignment},
		{EvAligned, types.PhasePositionCheck},
		{EvPositionAccepted, types.PhaseParkingCompleteStop},
		{EvHoldElapsed, types.PhaseFinalForward},
		{EvFinalTurnDone, types.PhaseCompleted},
	}
	for _, step := range path {
		got, err := tr.Fire(step.ev)
		if err != nil {
			t.Fatalf("Fire(%s): %v", step.ev, err)
		}
		if got != step.want {
			t.Fatalf("Fire(%s) = %s, want %s", step.ev, got, step.want)
		}
	}
}

func TestTableTrackerRejectsIllegalEdge(t *testing.T) {
	tr := NewTableTracker()
	if _, err := tr.Fire(EvAligned); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if tr.Current() != types.PhaseWaiting {
		t.Errorf("phase moved on illegal event: %s", tr.Current())
	}
}

func TestTableTrackerReset(t *testing.T) {
	tr := NewTableTracker()
	if _, err := tr.Fire(EvBegin); err != nil {
		t.Fatal(err)
	}
	if err := tr.Reset(); err != nil {
		t.Fatal(err)
	}
	if tr.Current() != types.PhaseWaiting {
		t.Errorf("expected WAITING after reset, got %s", tr.Current())
	}
}

func TestMachineTrackerFollowsTable(t *testing.T) {
	var mu sync.Mutex
	var entered []types.Phase
	actions := ActionsFunc(func(p types.Phase) {
		mu.Lock()
		entered = append(entered, p)
		mu.Unlock()
	})

	tr, err := NewMachineTracker(context.Background(), actions, nil)
	if err != nil {
		t.Fatalf("NewMachineTracker: %v", err)
	}
	defer tr.Close()

	if got, err := tr.Fire(EvBegin); err != nil || got != types.PhaseInitialForward {
		t.Fatalf("Fire(begin) = %s, %v", got, err)
	}
	if got, err := tr.Fire(EvRightSideDetected); err != nil || got != types.PhaseFirstStop {
		t.Fatalf("Fire(right-side-detected) = %s, %v", got, err)
	}

	if _, err := tr.Fire(EvFinalTurnDone); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if tr.Current() != types.PhaseFirstStop {
		t.Errorf("illegal event moved machine to %s", tr.Current())
	}

	if err := tr.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if tr.Current() != types.PhaseWaiting {
		t.Errorf("expected WAITING after reset, got %s", tr.Current())
	}
}
