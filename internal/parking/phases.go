package parking

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"

	"parking-service/internal/fsm"
	"parking-service/internal/logger"
	"parking-service/internal/types"
)

// execute runs the handler of one phase. Handlers only queue commands and
// move the tracker; they never block.
func (m *PhaseMachine) execute(phase types.Phase, snap Snapshot, now time.Time) error {
	switch phase {
	case types.PhaseWaiting:
		return m.waiting(snap)
	case types.PhaseInitialForward:
		return m.initialForward(snap)
	case types.PhaseFirstStop:
		return m.firstStop()
	case types.PhaseLeftTurnForward:
		return m.leftTurnForward(snap)
	case types.PhaseSecondStop:
		return m.secondStop()
	case types.PhaseRightTurnBackward:
		return m.rightTurnBackward(snap, now)
	case types.PhaseStraightBackward:
		return m.straightBackward(now)
	case types.PhaseAlignment:
		return m.alignment(snap)
	case types.PhasePositionCheck:
		return m.positionCheck(snap)
	case types.PhaseCorrection:
		return m.correction(now)
	case types.PhasePostCorrectionBackward:
		return m.postCorrectionBackward(snap, now)
	case types.PhaseParkingCompleteStop:
		return m.parkingCompleteStop(now)
	case types.PhaseFinalForward:
		return m.finalForward(snap, now)
	case types.PhaseCompleted:
		return m.complete()
	}
	return errors.Errorf("no handler for phase %s", phase)
}

func (m *PhaseMachine) waiting(snap Snapshot) error {
	if !m.once(latchInitialForward) {
		return nil
	}
	if _, err := m.transition(fsm.EvBegin); err != nil {
		return err
	}
	return m.initialForward(snap)
}

func (m *PhaseMachine) initialForward(snap Snapshot) error {
	m.issue(types.Forward(m.cfg.ForwardSpeed), types.HoldStraight())
	m.message = "driving straight forward"

	detected := true
	for _, name := range types.DetectionSensors() {
		if !m.flags[name] && snap.Rise(name, lateralRiseThreshold) {
			m.flags[name] = true
			m.noteLocked(logger.LogLevelInfo, nil, "Sensor %s passed the edge (%.1f -> %.1f)", name, snap.Previous(name), snap.Get(name))
		}
		detected = detected && m.flags[name]
	}
	if !detected {
		return nil
	}

	m.message = "all right sensors detected, stopping"
	_, err := m.transition(fsm.EvRightSideDetected)
	return err
}

func (m *PhaseMachine) firstStop() error {
	if m.once(latchFirstStop) {
		m.issue(types.Stop())
		m.message = "first stop complete"
	}
	_, err := m.transition(fsm.EvFirstStopDone)
	return err
}

func (m *PhaseMachine) leftTurnForward(snap Snapshot) error {
	if m.once(latchLeftTurn) {
		m.issue(types.SteerLeft(math.Abs(m.cfg.LeftTurnAngle)), types.Forward(m.cfg.ForwardSpeed))
		m.message = "steering left forward"
	}
	if !snap.Rise(types.RearRight, secondStopRiseThreshold) {
		return nil
	}
	m.message = "second stop detected"
	_, err := m.transition(fsm.EvRearEdgeDetected)
	return err
}

func (m *PhaseMachine) secondStop() error {
	if m.once(latchSecondStop) {
		m.issue(types.Stop())
		m.message = "second stop complete"
	}
	_, err := m.transition(fsm.EvSecondStopDone)
	return err
}

func (m *PhaseMachine) rightTurnBackward(snap Snapshot, now time.Time) error {
	if m.once(latchRightTurn) {
		m.issue(types.SteerRight(m.cfg.RightTurnAngle), types.Backward(m.cfg.BackwardSpeed))
		m.startTimer(timerRightTurn, now)
		m.message = "reversing with right steer"
	} else if el, ok := m.elapsed(timerRightTurn, now); ok {
		if el < m.cfg.RightTurnRampDuration {
			angle := RampToZero(m.cfg.RightTurnAngle, el, m.cfg.RightTurnRampDuration)
			if angle > 0 {
				m.issue(types.SteerRight(angle))
			} else {
				m.issue(types.HoldStraight())
			}
			m.message = fmt.Sprintf("ramping steering (%.1f deg)", angle)
		} else {
			m.issue(types.HoldStraight())
		}
	}

	if !m.withinStopDistance(snap) {
		return nil
	}
	m.message = "reverse complete"
	_, err := m.transition(fsm.EvStopDistanceReached)
	return err
}

func (m *PhaseMachine) straightBackward(now time.Time) error {
	if m.once(latchStraightBack) {
		m.issue(types.HoldStraight(), types.Backward(m.cfg.BackwardSpeed))
		m.startTimer(timerStraightBackward, now)
		m.message = "straight reverse"
	}
	if el, ok := m.elapsed(timerStraightBackward, now); !ok || el < m.cfg.StraightBackwardDuration {
		return nil
	}
	_, err := m.transition(fsm.EvStraightElapsed)
	return err
}

func (m *PhaseMachine) alignment(snap Snapshot) error {
	if m.latches[latchAlignment] {
		return nil
	}
	m.issue(types.Backward(m.cfg.BackwardSpeed))
	m.message = "aligning vehicle"

	if !snap.Valid(types.FrontRight) || !snap.Valid(types.RearRight) {
		return nil
	}
	diff := snap.Get(types.FrontRight) - snap.Get(types.RearRight)
	if math.Abs(diff) <= m.cfg.AlignmentTolerance {
		m.latches[latchAlignment] = true
		m.issue(types.Stop())
		m.message = "vehicle aligned"
		_, err := m.transition(fsm.EvAligned)
		return err
	}

	if diff > 0 {
		m.issue(types.SteerLeft(m.cfg.AlignmentAngle))
		m.message = "steering left to align"
	} else {
		m.issue(types.SteerRight(m.cfg.AlignmentAngle))
		m.message = "steering right to align"
	}
	return nil
}

func (m *PhaseMachine) positionCheck(snap Snapshot) error {
	left := snap.Get(types.MiddleLeft)
	right := snap.Get(types.MiddleRight)

	// both middle sensors blind: no offset to correct
	if (left <= 0 && right <= 0) || math.Abs(right-left) < m.cfg.CorrectionThreshold {
		m.message = "parking complete"
		_, err := m.transition(fsm.EvPositionAccepted)
		return err
	}

	if right > left {
		m.bias = types.BiasLeft
	} else {
		m.bias = types.BiasRight
	}
	m.message = fmt.Sprintf("%s, correction needed", m.bias)
	m.noteLocked(logger.LogLevelInfo, nil, "Lateral offset %.1f cm (left %.1f, right %.1f): %s", right-left, left, right, m.bias)
	_, err := m.transition(fsm.EvCorrectionNeeded)
	return err
}

// correctionStart is the initial steering angle for the recorded bias:
// positive steers right, away from a left bias.
func (m *PhaseMachine) correctionStart() float64 {
	a := math.Abs(m.cfg.CorrectionAngle)
	if m.bias == types.BiasRight {
		return -a
	}
	return a
}

func steer(angle float64) types.MotionCommand {
	switch {
	case angle > 0:
		return types.SteerRight(angle)
	case angle < 0:
		return types.SteerLeft(-angle)
	}
	return types.HoldStraight()
}

func (m *PhaseMachine) correction(now time.Time) error {
	start := m.correctionStart()
	if m.once(latchCorrection) {
		m.startTimer(timerCorrection, now)
		m.issue(types.Forward(m.cfg.ForwardSpeed), steer(start))
		m.message = fmt.Sprintf("correcting %s drift", m.bias)
		return nil
	}

	el, _ := m.elapsed(timerCorrection, now)
	if el < m.cfg.CorrectionDuration {
		m.issue(steer(CorrectionAngle(start, el, m.cfg.CorrectionDuration)))
		return nil
	}

	m.issue(types.Stop())
	m.message = "correction complete"
	_, err := m.transition(fsm.EvCorrectionElapsed)
	return err
}

func (m *PhaseMachine) postCorrectionBackward(snap Snapshot, now time.Time) error {
	if m.once(latchPostCorrection) {
		m.issue(types.HoldStraight(), types.Backward(m.cfg.BackwardSpeed))
		m.startTimer(timerPostCorrection, now)
		m.message = "straight reverse after correction"
	}

	if _, running := m.elapsed(timerAdditionalBackward, now); !running {
		if !m.withinStopDistance(snap) {
			return nil
		}
		m.startTimer(timerAdditionalBackward, now)
		m.message = "front_right within stop distance, extra reverse"
		return nil
	}

	if el, _ := m.elapsed(timerAdditionalBackward, now); el < m.cfg.AdditionalBackwardDuration {
		return nil
	}
	m.issue(types.Stop())
	m.message = "post-correction reverse complete"
	_, err := m.transition(fsm.EvExtraBackwardDone)
	return err
}

func (m *PhaseMachine) parkingCompleteStop(now time.Time) error {
	if m.once(latchCompletionStop) {
		m.issue(types.Stop())
		m.startTimer(timerCompletionStop, now)
		m.message = "parking complete, holding"
	}
	if el, ok := m.elapsed(timerCompletionStop, now); !ok || el < m.cfg.ParkingStopDuration {
		return nil
	}
	_, err := m.transition(fsm.EvHoldElapsed)
	return err
}

func (m *PhaseMachine) finalForward(snap Snapshot, now time.Time) error {
	if m.once(latchFinalForward) {
		m.issue(types.HoldStraight(), types.Forward(m.cfg.ForwardSpeed))
		m.message = "final straight forward"
	}

	if !m.latches[latchFinalRightTurn] {
		if !snap.Rise(types.RearRight, finalTurnRiseThreshold) {
			return nil
		}
		m.latches[latchFinalRightTurn] = true
		m.startTimer(timerFinalRightTurn, now)
		m.issue(types.SteerRight(m.cfg.FinalRightTurnAngle))
		m.message = "steering right"
		return nil
	}

	if el, ok := m.elapsed(timerFinalRightTurn, now); !ok || el < m.cfg.RightTurnDuration {
		return nil
	}
	m.issue(types.HoldStraight())
	m.message = "right turn complete"
	if _, err := m.transition(fsm.EvFinalTurnDone); err != nil {
		return err
	}
	return m.complete()
}

// complete is the terminal handler. It is safe to run repeatedly.
func (m *PhaseMachine) complete() error {
	m.issue(types.Stop())
	m.completed = true
	m.active = false
	m.message = "parking completed"
	if m.once(latchCompletedReport) {
		m.noteLocked(logger.LogLevelInfo, nil, "Parking attempt %s completed", m.attemptID)
	}
	return nil
}

// withinStopDistance reports a valid front_right reading at or inside the
// configured stop distance.
func (m *PhaseMachine) withinStopDistance(snap Snapshot) bool {
	return snap.Valid(types.FrontRight) && snap.Get(types.FrontRight) <= m.cfg.StopDistance
}
