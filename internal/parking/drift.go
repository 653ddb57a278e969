package parking

// SteeringRamp linearly interpolates a steering angle from start toward
// target over duration seconds. Elapsed time is clamped to [0, duration],
// so the result stays at target once the ramp is over.
func SteeringRamp(start, elapsed, duration, target float64) float64 {
	if duration <= 0 {
		return target
	}
	if elapsed <= 0 {
		return start
	}
	if elapsed >= duration {
		return target
	}
	return start + (target-start)*(elapsed/duration)
}

// RampToZero is the reverse-turn ramp: the angle decays linearly from start
// to zero and never changes sign.
func RampToZero(start, elapsed, duration float64) float64 {
	a := SteeringRamp(start, elapsed, duration, 0)
	if start >= 0 && a < 0 || start < 0 && a > 0 {
		return 0
	}
	return a
}

// CorrectionAngle sweeps from start through zero to -start over duration:
// angle(t) = start - (t/duration)*2*start.
func CorrectionAngle(start, elapsed, duration float64) float64 {
	return SteeringRamp(start, elapsed, duration, -start)
}
