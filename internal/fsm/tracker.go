package fsm

import (
	"context"
	"sync"

	"github.com/librescoot/librefsm"
	"github.com/pkg/errors"

	"parking-service/internal/types"
)

// ErrIllegalTransition is returned when an event has no edge from the
// current phase.
var ErrIllegalTransition = errors.New("illegal phase transition")

// Tracker owns the current phase and only moves it along the transition
// table. Reset is the single escape hatch back to WAITING.
type Tracker interface {
	Current() types.Phase
	Fire(ev librefsm.EventID) (types.Phase, error)
	Reset() error
	Close() error
}

// TableTracker walks the transition table in memory. It is synchronous and
// has no goroutines, which the unit tests and the simulator rely on.
type TableTracker struct {
	mu    sync.Mutex
	phase types.Phase
}

func NewTableTracker() *TableTracker {
	return &TableTracker{phase: types.PhaseWaiting}
}

func (t *TableTracker) Current() types.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *TableTracker) Fire(ev librefsm.EventID) (types.Phase, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	to, ok := Lookup(t.phase, ev)
	if !ok {
		return t.phase, errors.Wrapf(ErrIllegalTransition, "%s on %s", ev, t.phase)
	}
	t.phase = to
	return to, nil
}

func (t *TableTracker) Reset() error {
	t.mu.Lock()
	t.phase = types.PhaseWaiting
	t.mu.Unlock()
	return nil
}

func (t *TableTracker) Close() error { return nil }

// machine is the subset of the librefsm runtime the tracker drives.
type machine interface {
	CurrentState() librefsm.StateID
	SendSync(ev librefsm.Event) error
	SetState(id librefsm.StateID) error
}

// MachineTracker drives a librefsm machine built from the transition table.
type MachineTracker struct {
	machine machine
	cancel  context.CancelFunc
}

// NewMachineTracker builds and starts the librefsm machine. onChange, if not
// nil, is invoked on every state change from the FSM goroutine.
func NewMachineTracker(ctx context.Context, actions Actions, onChange func(from, to types.Phase)) (*MachineTracker, error) {
	def := NewDefinition(actions)
	m, err := def.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build parking fsm")
	}

	if onChange != nil {
		m.OnStateChange(func(from, to librefsm.StateID) {
			f, _ := PhaseForState(from)
			t, _ := PhaseForState(to)
			onChange(f, t)
		})
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := m.Start(ctx); err != nil {
		cancel()
		return nil, errors.Wrap(err, "start parking fsm")
	}

	return &MachineTracker{machine: m, cancel: cancel}, nil
}

func (m *MachineTracker) Current() types.Phase {
	p, _ := PhaseForState(m.machine.CurrentState())
	return p
}

// Fire sends the event synchronously and verifies that the machine landed
// in the phase the table predicts. librefsm ignores events without a
// matching transition, so an unchanged state means the edge is missing.
func (m *MachineTracker) Fire(ev librefsm.EventID) (types.Phase, error) {
	from := m.Current()
	want, ok := Lookup(from, ev)
	if !ok {
		return from, errors.Wrapf(ErrIllegalTransition, "%s on %s", ev, from)
	}

	if err := m.machine.SendSync(librefsm.Event{ID: ev}); err != nil {
		return from, errors.Wrapf(err, "send %s", ev)
	}

	got := m.Current()
	if got != want {
		return got, errors.Wrapf(ErrIllegalTransition, "%s on %s landed in %s, expected %s", ev, from, got, want)
	}
	return got, nil
}

func (m *MachineTracker) Reset() error {
	if err := m.machine.SetState(StateWaiting); err != nil {
		return errors.Wrap(err, "reset parking fsm")
	}
	return nil
}

func (m *MachineTracker) Close() error {
	m.cancel()
	return nil
}
