package parking

import "time"

// Clock supplies timestamps for phase timers. time.Now carries a monotonic
// reading, so Sub between two values is immune to wall clock jumps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the process clock.
func SystemClock() Clock { return systemClock{} }

func elapsedSeconds(start, now time.Time) float64 {
	d := now.Sub(start).Seconds()
	if d < 0 {
		return 0
	}
	return d
}
