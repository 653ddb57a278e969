package main

import (
	"errors"
	"testing"

	"parking-service/internal/core"
	"parking-service/internal/messaging"
	"parking-service/internal/parking"
)

type pushed struct{ list, payload string }

type mockQueue struct {
	pushed []pushed
	err    error
}

func (q *mockQueue) SendCommand(list, payload string) error {
	if q.err != nil {
		return q.err
	}
	q.pushed = append(q.pushed, pushed{list, payload})
	return nil
}

func TestParsePatchArgs(t *testing.T) {
	patch, err := parsePatchArgs([]string{"stop_distance=35", "alignment_tolerance=0"})
	if err != nil {
		t.Fatalf("parsePatchArgs: %v", err)
	}
	if patch.StopDistance == nil || *patch.StopDistance != 35 {
		t.Errorf("stop_distance = %v", patch.StopDistance)
	}
	if patch.AlignmentTolerance == nil || *patch.AlignmentTolerance != 0 {
		t.Errorf("alignment_tolerance = %v", patch.AlignmentTolerance)
	}
	if patch.ForwardSpeed != nil {
		t.Errorf("forward_speed set without being given")
	}

	for _, args := range [][]string{
		{"stop_distance"},
		{"stop_distance=far"},
		{"stop_distanse=30"},
	} {
		if _, err := parsePatchArgs(args); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}

	if _, err := parsePatchArgs([]string{"no_such_key=1"}); !errors.Is(err, parking.ErrInvalidConfigValue) {
		t.Errorf("unknown key error = %v", err)
	}
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := splitHostPort("10.0.0.2:6380")
	if err != nil || host != "10.0.0.2" || port != 6380 {
		t.Errorf("got %q %d %v", host, port, err)
	}
	for _, bad := range []string{"10.0.0.2", "host:0", "host:http"} {
		if _, _, err := splitHostPort(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestCommandTree(t *testing.T) {
	root := NewCommand()
	for _, name := range []string{"run", "simulate", "ports", "status", "config", "start", "stop", "reset", "estop"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing subcommand %s", name)
		}
	}
}

func TestQueueCommandAndConfig(t *testing.T) {
	q := &mockQueue{}
	if err := queueCommand(q, core.CommandEmergencyStop); err != nil {
		t.Fatalf("queueCommand: %v", err)
	}
	patch, err := parsePatchArgs([]string{"stop_distance=35"})
	if err != nil {
		t.Fatalf("parsePatchArgs: %v", err)
	}
	if err := queueConfig(q, patch); err != nil {
		t.Fatalf("queueConfig: %v", err)
	}

	want := []pushed{
		{messaging.CommandList, "emergency-stop"},
		{messaging.ConfigList, `{"stop_distance":35}`},
	}
	if len(q.pushed) != len(want) {
		t.Fatalf("pushed = %v, want %v", q.pushed, want)
	}
	for i := range want {
		if q.pushed[i] != want[i] {
			t.Errorf("pushed[%d] = %v, want %v", i, q.pushed[i], want[i])
		}
	}

	// the queued payload is what the service's config list listener parses
	got, err := parking.ParsePatch([]byte(q.pushed[1].payload))
	if err != nil || got.StopDistance == nil || *got.StopDistance != 35 {
		t.Errorf("round trip = %+v, %v", got, err)
	}

	q.err = errors.New("connection reset")
	if err := queueCommand(q, core.CommandStart); err == nil {
		t.Error("expected push error")
	}
}
