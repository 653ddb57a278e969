package types

import "fmt"

type MotionKind int

const (
	MotionStop MotionKind = iota
	MotionForward
	MotionBackward
	MotionSteerLeft
	MotionSteerRight
	MotionHoldStraight
)

func (k MotionKind) String() string {
	switch k {
	case MotionStop:
		return "stop"
	case MotionForward:
		return "forward"
	case MotionBackward:
		return "backward"
	case MotionSteerLeft:
		return "steer_left"
	case MotionSteerRight:
		return "steer_right"
	case MotionHoldStraight:
		return "hold_straight"
	default:
		return fmt.Sprintf("MotionKind(%d)", int(k))
	}
}

// MotionCommand is the abstract instruction sent to the actuator.
// Speed is used by forward/backward (0-100); Angle carries the requested
// steering magnitude in degrees for steer commands, informational for
// actuators that only support a fixed steering bias.
type MotionCommand struct {
	Kind  MotionKind
	Speed float64
	Angle float64
}

func Forward(speed float64) MotionCommand  { return MotionCommand{Kind: MotionForward, Speed: speed} }
func Backward(speed float64) MotionCommand { return MotionCommand{Kind: MotionBackward, Speed: speed} }
func SteerLeft(angle float64) MotionCommand {
	return MotionCommand{Kind: MotionSteerLeft, Angle: angle}
}
func SteerRight(angle float64) MotionCommand {
	return MotionCommand{Kind: MotionSteerRight, Angle: angle}
}
func HoldStraight() MotionCommand { return MotionCommand{Kind: MotionHoldStraight} }
func Stop() MotionCommand         { return MotionCommand{Kind: MotionStop} }

func (c MotionCommand) String() string {
	switch c.Kind {
	case MotionForward, MotionBackward:
		return fmt.Sprintf("%s(%.0f)", c.Kind, c.Speed)
	case MotionSteerLeft, MotionSteerRight:
		return fmt.Sprintf("%s(%.1f)", c.Kind, c.Angle)
	default:
		return c.Kind.String()
	}
}
