package parking

import (
	"errors"
	"testing"

	"parking-service/internal/types"
)

func TestCommanderFoldsBatch(t *testing.T) {
	act := &mockActuator{}
	c := NewMotionCommander(act, nil)

	applied, err := c.Dispatch(c.Epoch(), []types.MotionCommand{
		types.Backward(25), types.SteerLeft(-20),
	}, 50)
	if err != nil || !applied {
		t.Fatalf("Dispatch = %v, %v", applied, err)
	}
	speed, angle := c.Output()
	if speed != -25 || angle != -20 {
		t.Errorf("output = %v, %v; want -25, -20", speed, angle)
	}
	if w := act.wheelCalls(); len(w) != 1 || w[0] != [2]float64{-25, -25} {
		t.Errorf("wheels = %v", w)
	}

	// steering only, the drive is left alone
	act.reset()
	c.Dispatch(c.Epoch(), []types.MotionCommand{types.HoldStraight()}, 50)
	if len(act.wheelCalls()) != 0 || len(act.steeringCalls()) != 1 {
		t.Errorf("wheels=%v steering=%v", act.wheelCalls(), act.steeringCalls())
	}
}

func TestCommanderDropsStaleEpoch(t *testing.T) {
	act := &mockActuator{}
	c := NewMotionCommander(act, nil)

	old := c.Epoch()
	c.Invalidate()
	applied, err := c.Dispatch(old, []types.MotionCommand{types.Forward(30)}, 50)
	if err != nil || applied {
		t.Errorf("stale batch: applied=%v err=%v", applied, err)
	}
	if len(act.wheelCalls()) != 0 {
		t.Error("stale batch reached the actuator")
	}
}

func TestCommanderClampsSpeed(t *testing.T) {
	act := &mockActuator{}
	c := NewMotionCommander(act, nil)
	c.Dispatch(c.Epoch(), []types.MotionCommand{types.Forward(150)}, 50)
	if speed, _ := c.Output(); speed != 100 {
		t.Errorf("speed = %v, want 100", speed)
	}
}

func TestCommanderWrapsActuatorErrors(t *testing.T) {
	act := &mockActuator{wheelErr: errors.New("bus timeout")}
	c := NewMotionCommander(act, nil)
	_, err := c.Dispatch(c.Epoch(), []types.MotionCommand{types.Stop()}, 50)
	if !errors.Is(err, ErrActuator) {
		t.Errorf("err = %v, want ErrActuator", err)
	}
}
