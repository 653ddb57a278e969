package parking

import (
	"strings"
	"sync"
	"testing"
	"time"

	"parking-service/internal/logger"
	"parking-service/internal/types"
)

// lockCheckWriter fails the test when a log line is written while the
// machine lock is held.
type lockCheckWriter struct {
	mu       sync.Mutex
	m        *PhaseMachine
	lines    []string
	underLock int
}

func (w *lockCheckWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.m != nil {
		if w.m.mu.TryLock() {
			w.m.mu.Unlock()
		} else {
			w.underLock++
		}
	}
	w.lines = append(w.lines, string(p))
	return len(p), nil
}

func TestNoLoggingUnderMachineLock(t *testing.T) {
	w := &lockCheckWriter{}
	h := newHarness(t, WithLogger(logger.NewLogger(w, logger.LogLevelDebug)))
	w.mu.Lock()
	w.m = h.m
	w.mu.Unlock()

	h.advanceTo(types.PhaseCompleted)
	if err := h.m.EmergencyStop(); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.underLock != 0 {
		t.Errorf("%d log lines written while the machine lock was held", w.underLock)
	}
	all := strings.Join(w.lines, "")
	for _, want := range []string{"Phase WAITING -> INITIAL_FORWARD", "passed the edge", "completed"} {
		if !strings.Contains(all, want) {
			t.Errorf("log is missing %q", want)
		}
	}
}

// slowProvider records stored configs and takes a while to store each one.
type slowProvider struct {
	mu     sync.Mutex
	stored []ParkingConfig
}

func (p *slowProvider) ParkingConfig() ParkingConfig { return DefaultParkingConfig() }

func (p *slowProvider) StoreParkingConfig(c ParkingConfig) error {
	time.Sleep(time.Millisecond)
	p.mu.Lock()
	p.stored = append(p.stored, c)
	p.mu.Unlock()
	return nil
}

func TestConcurrentConfigUpdatesPersistInOrder(t *testing.T) {
	provider := &slowProvider{}
	m, err := NewPhaseMachine(&mockActuator{}, provider, WithClock(newFakeClock()))
	if err != nil {
		t.Fatalf("NewPhaseMachine: %v", err)
	}
	defer m.Close()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		d := float64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.UpdateParkingConfig(ParkingConfigPatch{StopDistance: &d}); err != nil {
				t.Errorf("UpdateParkingConfig(%v): %v", d, err)
			}
		}()
	}
	wg.Wait()

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.stored) != 20 {
		t.Fatalf("stored %d configs, want 20", len(provider.stored))
	}
	if last := provider.stored[len(provider.stored)-1]; last != m.ParkingConfig() {
		t.Errorf("last stored stop distance %v, running %v", last.StopDistance, m.ParkingConfig().StopDistance)
	}
}
