// Package sim is a headless parking lot: a kinematic vehicle with five
// side-facing ultrasonic rangers among rectangular obstacles. World stands
// in for both the drive hardware and the ranger array.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"parking-service/internal/types"
)

const (
	// MaxRange is where a ray that hits nothing reports.
	MaxRange = 400.0
	// FrameTime is one kinematic integration step.
	FrameTime = time.Second / 30
	// percentPerUnit is the wheel speed percentage that moves one unit
	// per frame.
	percentPerUnit = 15.0
	// steerGain turns the heading by this fraction of the steering angle
	// per frame.
	steerGain = 0.1
)

// Rect is an axis aligned obstacle with its top left corner at X,Y. The
// world uses screen coordinates, y grows downward.
type Rect struct {
	X, Y, W, H float64
}

// Pose is the vehicle centre and heading in degrees; -90 points up.
type Pose struct {
	X, Y, Heading float64
}

// sensorMount is a ranger position relative to the vehicle centre: +x
// forward, +y right.
type sensorMount struct {
	forward, right float64
}

var mounts = map[types.SensorName]sensorMount{
	types.FrontRight:  {15, 15},
	types.MiddleLeft:  {0, -15},
	types.MiddleRight: {0, 15},
	types.RearLeft:    {-15, -15},
	types.RearRight:   {-15, 15},
}

func isRightSide(name types.SensorName) bool {
	return name == types.FrontRight || name == types.MiddleRight || name == types.RearRight
}

// World integrates vehicle motion and answers range queries. It also keeps
// simulated time, so a PhaseMachine using it as its Clock runs as fast as
// the world is stepped.
type World struct {
	mu        sync.Mutex
	pose      Pose
	speed     float64
	steering  float64
	obstacles []Rect
	epoch     time.Time
	elapsed   time.Duration
}

func NewWorld(start Pose, obstacles []Rect) *World {
	return &World{
		pose:      start,
		obstacles: append([]Rect(nil), obstacles...),
		epoch:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Bay is the target slot of DefaultScene.
var Bay = Rect{X: 350, Y: 405, W: 80, H: 50}

// DefaultScene is a row of three bays with the middle one empty and the
// vehicle approaching from below, left of the row.
func DefaultScene() *World {
	const (
		bayX, bayY = 350.0, 350.0
		bayW, bayH = 80.0, 50.0
		gap        = 5.0
		carW, carH = 64.0, 40.0
	)
	cars := []Rect{
		{X: bayX + (bayW-carW)/2, Y: bayY + (bayH-carH)/2, W: carW, H: carH},
		{X: bayX + (bayW-carW)/2, Y: bayY + 2*(bayH+gap) + (bayH-carH)/2, W: carW, H: carH},
	}
	return NewWorld(Pose{X: 300, Y: 650, Heading: -90}, cars)
}

// SetWheelSpeeds implements the drive half of the actuator. The vehicle
// has a single speed; the mean of both wheels is used.
func (w *World) SetWheelSpeeds(left, right float64) error {
	w.mu.Lock()
	w.speed = (left + right) / 2
	w.mu.Unlock()
	return nil
}

// SetSteering implements the steering half of the actuator. Steering is
// instantaneous; rate is ignored.
func (w *World) SetSteering(angle, rate float64) error {
	w.mu.Lock()
	w.steering = angle
	w.mu.Unlock()
	return nil
}

// Advance integrates dt worth of frames and moves the clock.
func (w *World) Advance(dt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	frames := int(dt / FrameTime)
	for i := 0; i < frames; i++ {
		w.frame()
	}
	w.elapsed += dt
}

func (w *World) frame() {
	if w.speed == 0 {
		return
	}
	w.pose.Heading += w.steering * steerGain * math.Copysign(1, w.speed)
	rad := w.pose.Heading * math.Pi / 180
	step := w.speed / percentPerUnit
	w.pose.X += step * math.Cos(rad)
	w.pose.Y += step * math.Sin(rad)
}

// Now implements parking.Clock with simulated time.
func (w *World) Now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch.Add(w.elapsed)
}

func (w *World) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

func (w *World) Pose() Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pose
}

// Motion returns the commanded speed and steering angle.
func (w *World) Motion() (speed, steering float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.speed, w.steering
}

// Read ray casts every ranger; right side rangers look right of the
// heading and left side ones look left.
func (w *World) Read(ctx context.Context) (map[types.SensorName]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[types.SensorName]float64, len(mounts))
	rad := w.pose.Heading * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	for name, m := range mounts {
		sx := w.pose.X + m.forward*cos - m.right*sin
		sy := w.pose.Y + m.forward*sin + m.right*cos

		ray := w.pose.Heading - 90
		if isRightSide(name) {
			ray = w.pose.Heading + 90
		}
		out[name] = castRay(sx, sy, ray, w.obstacles)
	}
	return out, nil
}

func castRay(x, y, heading float64, obstacles []Rect) float64 {
	rad := heading * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)
	best := MaxRange
	for _, r := range obstacles {
		if d, ok := r.intersect(x, y, dx, dy); ok && d < best {
			best = d
		}
	}
	return best
}

// intersect is the slab test for a ray from (x,y) along (dx,dy). A ray
// starting inside the rectangle hits at distance 0.
func (r Rect) intersect(x, y, dx, dy float64) (float64, bool) {
	tmin, tmax := 0.0, math.Inf(1)
	for _, axis := range [2]struct{ o, d, lo, hi float64 }{
		{x, dx, r.X, r.X + r.W},
		{y, dy, r.Y, r.Y + r.H},
	} {
		if math.Abs(axis.d) < 1e-12 {
			if axis.o < axis.lo || axis.o > axis.hi {
				return 0, false
			}
			continue
		}
		t1 := (axis.lo - axis.o) / axis.d
		t2 := (axis.hi - axis.o) / axis.d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// Contains reports whether the point lies in the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}
