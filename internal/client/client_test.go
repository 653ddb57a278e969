package client

import (
	"errors"
	"net/http/httptest"
	"testing"

	"parking-service/internal/api"
	"parking-service/internal/core"
	"parking-service/internal/parking"
	"parking-service/internal/sim"
	"parking-service/internal/types"
)

func newTestService(t *testing.T) *Client {
	t.Helper()
	w := sim.DefaultScene()
	machine, err := parking.NewPhaseMachine(w, nil, parking.WithClock(w))
	if err != nil {
		t.Fatalf("NewPhaseMachine: %v", err)
	}
	system := core.NewParkingSystem(machine, w, core.Options{}, nil)
	srv := httptest.NewServer(api.NewServer(system, "", nil).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestStatusAndCommands(t *testing.T) {
	c := newTestService(t)

	status, err := c.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Active || status.Phase != types.PhaseWaiting.String() {
		t.Errorf("initial status = %+v", status)
	}

	status, err = c.Command(core.CommandStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !status.Active || status.AttemptID == "" {
		t.Errorf("status after start = %+v", status)
	}

	status, err = c.Command(core.CommandEmergencyStop)
	if err != nil {
		t.Fatalf("emergency-stop: %v", err)
	}
	if status.Active || status.Message != "emergency stop" {
		t.Errorf("status after emergency stop = %+v", status)
	}

	if _, err := c.Command("warp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown command error = %v, want ErrNotFound", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	c := newTestService(t)

	tol := 0.0
	cfg, err := c.SetConfig(parking.ParkingConfigPatch{AlignmentTolerance: &tol})
	if err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if cfg.AlignmentTolerance != 0 {
		t.Errorf("alignment tolerance = %v", cfg.AlignmentTolerance)
	}

	speed := 101.0
	if _, err := c.SetConfig(parking.ParkingConfigPatch{ForwardSpeed: &speed}); !errors.Is(err, ErrBadRequest) {
		t.Errorf("out of range update error = %v, want ErrBadRequest", err)
	}

	got, err := c.GetConfig()
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	want := parking.DefaultParkingConfig()
	want.AlignmentTolerance = 0
	if got != want {
		t.Errorf("config = %+v, want %+v", got, want)
	}
}

func TestSensors(t *testing.T) {
	c := newTestService(t)

	sensors, err := c.GetSensors()
	if err != nil {
		t.Fatalf("GetSensors: %v", err)
	}
	for _, name := range types.AllSensors() {
		if sensors[name] != types.SentinelDistance {
			t.Errorf("%s = %v before any reading, want sentinel", name, sensors[name])
		}
	}
}

func TestServiceNotRunning(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	if _, err := c.GetStatus(); !errors.Is(err, ErrServiceNotRunning) {
		t.Errorf("error = %v, want ErrServiceNotRunning", err)
	}
}
