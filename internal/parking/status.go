package parking

import "parking-service/internal/types"

// Status returns a deep copy of the monitoring state. It shares no maps
// with the machine, so callers may keep or modify it freely.
func (m *PhaseMachine) Status() types.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	phase := m.tracker.Current()
	snap := m.store.Snapshot()

	flags := make(map[types.SensorName]bool, len(m.flags))
	for k, v := range m.flags {
		flags[k] = v
	}

	return types.Status{
		AttemptID:       m.attemptID,
		Phase:           phase.String(),
		PhaseOrdinal:    int(phase),
		Message:         m.message,
		Active:          m.active,
		Completed:       m.completed,
		Bias:            m.bias,
		SensorDistances: snap.Distances(),
		SensorFlags:     flags,
	}
}

// Sensors returns the current distance of every sensor.
func (m *PhaseMachine) Sensors() map[types.SensorName]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Snapshot().Distances()
}

// LastKnown returns the stored distance for one sensor, or the sentinel.
// The driver loop substitutes it for a sensor that failed to read.
func (m *PhaseMachine) LastKnown(name types.SensorName) float64 {
	return m.store.Get(name)
}
