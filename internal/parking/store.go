package parking

import (
	"math"
	"sync"

	"parking-service/internal/types"
)

// SensorStore holds the latest distance per sensor plus the one sample
// before it, which is all edge detection needs.
type SensorStore struct {
	mu       sync.RWMutex
	current  map[types.SensorName]float64
	previous map[types.SensorName]float64
}

func NewSensorStore() *SensorStore {
	return &SensorStore{
		current:  make(map[types.SensorName]float64),
		previous: make(map[types.SensorName]float64),
	}
}

// Update merges readings by name, last write wins. Negative and non-finite
// values are stored as 0, which every predicate treats as invalid.
func (s *SensorStore) Update(readings map[types.SensorName]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, d := range readings {
		if old, ok := s.current[name]; ok {
			s.previous[name] = old
		}
		s.current[name] = sanitizeDistance(d)
	}
}

// Get returns the last known distance or the sentinel if the sensor has
// never reported.
func (s *SensorStore) Get(name types.SensorName) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.current[name]; ok {
		return d
	}
	return types.SentinelDistance
}

// Snapshot copies the current and previous samples for one step evaluation.
func (s *SensorStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		current:  make(map[types.SensorName]float64, len(s.current)),
		previous: make(map[types.SensorName]float64, len(s.previous)),
	}
	for k, v := range s.current {
		snap.current[k] = v
	}
	for k, v := range s.previous {
		snap.previous[k] = v
	}
	return snap
}

// ForgetHistory drops the previous samples so no edge can fire until every
// sensor has reported twice more. Current values are kept for status.
func (s *SensorStore) ForgetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous = make(map[types.SensorName]float64)
}

func sanitizeDistance(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	current  map[types.SensorName]float64
	previous map[types.SensorName]float64
}

// Get returns the current distance, or the sentinel when unknown.
func (s Snapshot) Get(name types.SensorName) float64 {
	if d, ok := s.current[name]; ok {
		return d
	}
	return types.SentinelDistance
}

// Previous returns the sample before the current one. A sensor with fewer
// than two samples reports 0 so it can never trigger an edge.
func (s Snapshot) Previous(name types.SensorName) float64 {
	return s.previous[name]
}

// Rise reports whether the sensor jumped by more than threshold between the
// previous and current sample. Both samples must be strictly positive.
func (s Snapshot) Rise(name types.SensorName, threshold float64) bool {
	cur, ok := s.current[name]
	if !ok {
		return false
	}
	prev := s.previous[name]
	if cur <= 0 || prev <= 0 {
		return false
	}
	return cur > prev+threshold
}

// Valid reports whether the sensor has a strictly positive current reading.
func (s Snapshot) Valid(name types.SensorName) bool {
	d, ok := s.current[name]
	return ok && d > 0
}

// Distances returns the current distance of every sensor, substituting the
// sentinel for sensors that never reported.
func (s Snapshot) Distances() map[types.SensorName]float64 {
	out := make(map[types.SensorName]float64, len(types.AllSensors()))
	for _, name := range types.AllSensors() {
		out[name] = s.Get(name)
	}
	return out
}
