package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parking-service/internal/messaging"
	"parking-service/internal/parking"
	"parking-service/internal/types"
)

// Mock MessagingClient
type mockMessagingClient struct {
	mu        sync.Mutex
	callbacks messaging.Callbacks

	// Track method calls
	statuses      []types.Status
	faultsPresent []int
	faultsAbsent  []int
	listening     bool
	closed        bool
}

func (m *mockMessagingClient) SetCallbacks(callbacks messaging.Callbacks) { m.callbacks = callbacks }
func (m *mockMessagingClient) Connect() error                             { return nil }

func (m *mockMessagingClient) StartListening() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listening = true
	return nil
}

func (m *mockMessagingClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockMessagingClient) PublishStatus(status types.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockMessagingClient) ReportFaultPresent(code int, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faultsPresent = append(m.faultsPresent, code)
	return nil
}

func (m *mockMessagingClient) ReportFaultAbsent(code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faultsAbsent = append(m.faultsAbsent, code)
	return nil
}

func (m *mockMessagingClient) statusCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statuses)
}

func count(codes []int, code int) int {
	n := 0
	for _, c := range codes {
		if c == code {
			n++
		}
	}
	return n
}

// Mock RangeSensorArray
type mockSensors struct {
	mu       sync.Mutex
	readings map[types.SensorName]float64
	err      error
}

func (s *mockSensors) set(readings map[types.SensorName]float64, err error) {
	s.mu.Lock()
	s.readings = readings
	s.err = err
	s.mu.Unlock()
}

func (s *mockSensors) Read(ctx context.Context) (map[types.SensorName]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[types.SensorName]float64, len(s.readings))
	for k, v := range s.readings {
		out[k] = v
	}
	return out, s.err
}

// Mock MotionActuator
type mockActuator struct {
	mu       sync.Mutex
	wheels   []float64
	wheelErr error
}

func (a *mockActuator) SetWheelSpeeds(left, right float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.wheelErr != nil {
		return a.wheelErr
	}
	a.wheels = append(a.wheels, left)
	return nil
}

func (a *mockActuator) SetSteering(angle, rate float64) error { return nil }

func uniform(d float64) map[types.SensorName]float64 {
	out := make(map[types.SensorName]float64)
	for _, name := range types.AllSensors() {
		out[name] = d
	}
	return out
}

type testSystem struct {
	system   *ParkingSystem
	redis    *mockMessagingClient
	sensors  *mockSensors
	actuator *mockActuator
}

func newTestSystem(t *testing.T) *testSystem {
	t.Helper()
	actuator := &mockActuator{}
	machine, err := parking.NewPhaseMachine(actuator, nil)
	if err != nil {
		t.Fatalf("NewPhaseMachine: %v", err)
	}
	ts := &testSystem{
		redis:    &mockMessagingClient{},
		sensors:  &mockSensors{readings: uniform(50)},
		actuator: actuator,
	}
	ts.system = NewParkingSystem(machine, ts.sensors, Options{
		TickInterval:   10 * time.Millisecond,
		StatusInterval: 10 * time.Millisecond,
		Messaging:      ts.redis,
	}, nil)
	return ts
}

func TestTickFeedsMachine(t *testing.T) {
	ts := newTestSystem(t)

	// inactive: readings still land in the store
	if err := ts.system.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := ts.system.Sensors()[types.FrontRight]; got != 50 {
		t.Errorf("front_right = %v, want 50", got)
	}
	if got := ts.system.Status().Phase; got != types.PhaseWaiting.String() {
		t.Errorf("phase = %s, want WAITING while inactive", got)
	}

	if err := ts.system.HandleCommand(CommandStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := ts.system.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := ts.system.Status().Phase; got != types.PhaseInitialForward.String() {
		t.Errorf("phase = %s, want INITIAL_FORWARD", got)
	}
	if len(ts.actuator.wheels) == 0 || ts.actuator.wheels[0] != 30 {
		t.Errorf("wheels = %v, want forward 30", ts.actuator.wheels)
	}
}

func TestTickSubstitutesLastKnown(t *testing.T) {
	ts := newTestSystem(t)
	if err := ts.system.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	partial := uniform(60)
	delete(partial, types.FrontRight)
	ts.sensors.set(partial, &parking.SensorError{Sensor: types.FrontRight, Err: errors.New("echo timeout")})

	for i := 0; i < 3; i++ {
		if err := ts.system.Tick(context.Background()); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	sensors := ts.system.Sensors()
	if sensors[types.FrontRight] != 50 {
		t.Errorf("front_right = %v, want last known 50", sensors[types.FrontRight])
	}
	if sensors[types.RearRight] != 60 {
		t.Errorf("rear_right = %v, want 60", sensors[types.RearRight])
	}
	if n := count(ts.redis.faultsPresent, messaging.FaultSensorRead); n != 1 {
		t.Errorf("sensor fault reported %d times, want 1", n)
	}

	ts.sensors.set(uniform(70), nil)
	if err := ts.system.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n := count(ts.redis.faultsAbsent, messaging.FaultSensorRead); n != 1 {
		t.Errorf("sensor fault cleared %d times, want 1", n)
	}
	if len(ts.system.Faults()) != 0 {
		t.Errorf("faults = %v, want none", ts.system.Faults())
	}
}

func TestMissingSensorWithoutHistoryUsesSentinel(t *testing.T) {
	ts := newTestSystem(t)
	ts.sensors.set(nil, errors.New("bus down"))

	if err := ts.system.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	for name, d := range ts.system.Sensors() {
		if d != types.SentinelDistance {
			t.Errorf("%s = %v, want sentinel", name, d)
		}
	}
}

func TestCommandRouting(t *testing.T) {
	ts := newTestSystem(t)

	if err := ts.system.HandleCommand(CommandStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !ts.system.Status().Active {
		t.Error("not active after start")
	}

	if err := ts.system.HandleCommand(CommandEmergencyStop); err != nil {
		t.Fatalf("emergency-stop: %v", err)
	}
	status := ts.system.Status()
	if status.Active || status.Message != "emergency stop" {
		t.Errorf("after emergency stop: active=%v message=%q", status.Active, status.Message)
	}
	if n := count(ts.redis.faultsPresent, messaging.FaultEmergencyStop); n != 1 {
		t.Errorf("emergency fault reported %d times, want 1", n)
	}

	// a new start clears the emergency fault
	if err := ts.system.HandleCommand(CommandStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n := count(ts.redis.faultsAbsent, messaging.FaultEmergencyStop); n != 1 {
		t.Errorf("emergency fault cleared %d times, want 1", n)
	}

	if err := ts.system.HandleCommand(CommandReset); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := ts.system.HandleCommand(CommandStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if ts.system.Status().Active {
		t.Error("active after stop")
	}

	if err := ts.system.HandleCommand("launch"); err == nil {
		t.Error("expected error for unknown command")
	}

	// every accepted command publishes a status
	if got := ts.redis.statusCount(); got != 5 {
		t.Errorf("published %d statuses, want 5", got)
	}
}

func TestHandleConfig(t *testing.T) {
	ts := newTestSystem(t)

	if err := ts.system.HandleConfig([]byte(`{"stop_distance": 35, "forward_speed": 20}`)); err != nil {
		t.Fatalf("HandleConfig: %v", err)
	}
	cfg := ts.system.ParkingConfig()
	if cfg.StopDistance != 35 || cfg.ForwardSpeed != 20 {
		t.Errorf("config = %+v", cfg)
	}

	for _, body := range []string{
		`{"stop_distance": -1}`,
		`{"stop_distnace": 30}`,
		`not json`,
	} {
		err := ts.system.HandleConfig([]byte(body))
		if !errors.Is(err, parking.ErrInvalidConfigValue) {
			t.Errorf("HandleConfig(%s) = %v, want ErrInvalidConfigValue", body, err)
		}
	}
	if got := ts.system.ParkingConfig().StopDistance; got != 35 {
		t.Errorf("stop_distance = %v after rejected updates, want 35", got)
	}
}

func TestStepAbortReportsFault(t *testing.T) {
	ts := newTestSystem(t)
	ts.actuator.wheelErr = errors.New("driver fault")

	if err := ts.system.HandleCommand(CommandStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := ts.system.Tick(context.Background())
	if !errors.Is(err, parking.ErrUnexpectedStep) {
		t.Fatalf("Tick = %v, want step abort", err)
	}
	if n := count(ts.redis.faultsPresent, messaging.FaultStepAborted); n != 1 {
		t.Errorf("abort fault reported %d times, want 1", n)
	}
	if ts.system.Status().Active {
		t.Error("still active after abort")
	}
}

func TestStartRunsLoops(t *testing.T) {
	ts := newTestSystem(t)

	if err := ts.system.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ts.redis.callbacks.CommandCallback == nil || ts.redis.callbacks.ConfigCallback == nil {
		t.Fatal("callbacks not registered")
	}
	if err := ts.redis.callbacks.CommandCallback(CommandStart); err != nil {
		t.Fatalf("command callback: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ts.system.Status().Phase == types.PhaseInitialForward.String() && ts.redis.statusCount() > 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := ts.system.Status().Phase; got != types.PhaseInitialForward.String() {
		t.Errorf("phase = %s, want INITIAL_FORWARD from the tick loop", got)
	}

	ts.system.Shutdown()
	if !ts.redis.closed {
		t.Error("messaging not closed on shutdown")
	}
	if ts.system.Status().Active {
		t.Error("still active after shutdown")
	}
}
