package parking

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/librescoot/librefsm"
	"github.com/pkg/errors"

	"parking-service/internal/fsm"
	"parking-service/internal/logger"
	"parking-service/internal/types"
)

// latch marks a one-shot phase entry action as done.
type latch string

const (
	latchInitialForward  latch = "initial-forward-started"
	latchFirstStop       latch = "first-stop-completed"
	latchLeftTurn        latch = "left-turn-started"
	latchSecondStop      latch = "second-stop-completed"
	latchRightTurn       latch = "right-turn-started"
	latchStraightBack    latch = "straight-backward-started"
	latchAlignment       latch = "alignment-completed"
	latchCorrection      latch = "correction-started"
	latchPostCorrection  latch = "post-correction-backward-started"
	latchCompletionStop  latch = "parking-completion-stop-started"
	latchFinalForward    latch = "final-forward-started"
	latchFinalRightTurn  latch = "right-turn-after-increase-started"
	latchCompletedReport latch = "completed"
)

// timer names a phase start timestamp.
type timer string

const (
	timerRightTurn          timer = "right-turn-backward"
	timerStraightBackward   timer = "straight-backward"
	timerCorrection         timer = "correction"
	timerPostCorrection     timer = "post-correction-backward"
	timerAdditionalBackward timer = "additional-backward"
	timerCompletionStop     timer = "parking-completion-stop"
	timerFinalRightTurn     timer = "final-right-turn"
)

// PhaseMachine runs the parking maneuver. Step, UpdateSensors and Status
// each hold one lock for a bounded, non-blocking section. Motion commands
// produced under the lock are sent to the actuator after it is released.
type PhaseMachine struct {
	mu sync.Mutex
	// persistMu orders config updates so the provider stores them in the
	// order they were applied. Taken before mu.
	persistMu sync.Mutex

	store     *SensorStore
	commander *MotionCommander
	tracker   fsm.Tracker
	clock     Clock
	logger    *logger.Logger
	provider  ConfigProvider
	cfg       ParkingConfig

	attemptID string
	active    bool
	completed bool
	message   string
	bias      types.BiasSide
	flags     map[types.SensorName]bool
	latches   map[latch]bool
	timers    map[timer]time.Time
	pending   []types.MotionCommand
	notes     []logNote
}

// Option customises a PhaseMachine.
type Option func(*PhaseMachine)

// WithClock replaces the process clock, used by tests and the simulator.
func WithClock(c Clock) Option {
	return func(m *PhaseMachine) { m.clock = c }
}

// WithTracker replaces the in-memory transition table walker, e.g. with a
// librefsm backed fsm.MachineTracker.
func WithTracker(t fsm.Tracker) Option {
	return func(m *PhaseMachine) { m.tracker = t }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *PhaseMachine) { m.logger = l }
}

// WithSensorStore shares an existing store.
func WithSensorStore(s *SensorStore) Option {
	return func(m *PhaseMachine) { m.store = s }
}

// NewPhaseMachine creates a stopped machine in WAITING. The provider's
// config is validated once here.
func NewPhaseMachine(actuator MotionActuator, provider ConfigProvider, opts ...Option) (*PhaseMachine, error) {
	if actuator == nil {
		return nil, errors.New("parking: nil motion actuator")
	}
	if provider == nil {
		provider = &StaticConfig{Config: DefaultParkingConfig()}
	}

	m := &PhaseMachine{
		provider: provider,
		message:  "waiting",
		flags:    make(map[types.SensorName]bool),
		latches:  make(map[latch]bool),
		timers:   make(map[timer]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.NewLogger(nil, logger.LogLevelNone)
	}
	m.logger = m.logger.WithTag("parking")
	if m.clock == nil {
		m.clock = SystemClock()
	}
	if m.tracker == nil {
		m.tracker = fsm.NewTableTracker()
	}
	if m.store == nil {
		m.store = NewSensorStore()
	}
	m.commander = NewMotionCommander(actuator, m.logger)

	m.cfg = provider.ParkingConfig()
	if err := m.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "initial parking config")
	}
	m.resetDetectionFlags()
	return m, nil
}

// Start begins a new attempt from WAITING with a fresh attempt id.
func (m *PhaseMachine) Start() error {
	m.mu.Lock()
	if err := m.rewindLocked(); err != nil {
		m.unlockAndFlush()
		return err
	}
	m.resetDetectionFlags()
	m.store.ForgetHistory()
	m.bias = types.BiasNone
	m.active = true
	m.completed = false
	m.attemptID = uuid.NewString()
	m.message = "parking started"
	m.commander.Invalidate()
	id := m.attemptID
	m.unlockAndFlush()

	m.logger.Infof("Parking attempt %s started", id)
	return nil
}

// Stop halts the vehicle and deactivates the machine in WAITING.
func (m *PhaseMachine) Stop() error {
	return m.halt("parking stopped")
}

// EmergencyStop is Stop with an emergency status message.
func (m *PhaseMachine) EmergencyStop() error {
	m.logger.Warnf("Emergency stop requested")
	return m.halt("emergency stop")
}

func (m *PhaseMachine) halt(message string) error {
	m.mu.Lock()
	m.active = false
	err := m.rewindLocked()
	m.message = message
	epoch, rate := m.queueStopLocked()
	m.unlockAndFlush()

	m.logger.Infof("%s", message)
	if _, derr := m.commander.Dispatch(epoch, []types.MotionCommand{types.Stop()}, rate); derr != nil {
		return derr
	}
	return err
}

// Reset stops motion and returns to WAITING with every latch, timer, flag
// and bias cleared. A running attempt restarts on the next step.
func (m *PhaseMachine) Reset() error {
	m.mu.Lock()
	err := m.rewindLocked()
	m.resetDetectionFlags()
	m.store.ForgetHistory()
	m.bias = types.BiasNone
	m.completed = false
	m.message = "system reset"
	epoch, rate := m.queueStopLocked()
	m.unlockAndFlush()

	m.logger.Infof("Parking state reset")
	if _, derr := m.commander.Dispatch(epoch, []types.MotionCommand{types.Stop()}, rate); derr != nil {
		return derr
	}
	return err
}

// queueStopLocked drops any queued commands and opens a new epoch for the
// stop command the caller dispatches after unlocking.
func (m *PhaseMachine) queueStopLocked() (uint64, float64) {
	m.pending = nil
	return m.commander.Invalidate(), m.cfg.SteeringSpeed
}

func (m *PhaseMachine) rewindLocked() error {
	for k := range m.latches {
		delete(m.latches, k)
	}
	for k := range m.timers {
		delete(m.timers, k)
	}
	m.pending = nil
	if err := m.tracker.Reset(); err != nil {
		m.noteLocked(logger.LogLevelError, nil, "Failed to reset phase tracker: %v", err)
		return errors.Wrap(err, "reset phase tracker")
	}
	return nil
}

func (m *PhaseMachine) resetDetectionFlags() {
	for _, name := range types.DetectionSensors() {
		m.flags[name] = false
	}
}

// UpdateSensors merges new readings. Unknown sensor names are ignored.
func (m *PhaseMachine) UpdateSensors(readings map[types.SensorName]float64) {
	clean := make(map[types.SensorName]float64, len(readings))
	for name, d := range readings {
		if !name.Valid() {
			m.logger.Debugf("Ignoring reading for unknown sensor %q", name)
			continue
		}
		clean[name] = d
	}

	m.mu.Lock()
	m.store.Update(clean)
	m.mu.Unlock()
}

// Step runs one control tick. It is a no-op while inactive. Any fault stops
// the vehicle, deactivates the machine and is returned as a *StepError.
func (m *PhaseMachine) Step() error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return nil
	}

	var stepErr *StepError
	if err := m.runPhaseLocked(); err != nil {
		stepErr = m.abortLocked(m.tracker.Current(), err)
	}
	batch := m.pending
	m.pending = nil
	epoch := m.commander.Epoch()
	rate := m.cfg.SteeringSpeed
	m.unlockAndFlush()

	applied, err := m.commander.Dispatch(epoch, batch, rate)
	if stepErr != nil {
		return stepErr
	}
	if err == nil {
		return nil
	}
	if !applied {
		m.logger.Debugf("Rejected batch: %v", err)
	}

	m.mu.Lock()
	if m.commander.Epoch() != epoch {
		// a stop or reset already took over
		m.mu.Unlock()
		return nil
	}
	stepErr = m.abortLocked(m.tracker.Current(), err)
	m.pending = nil
	epoch = m.commander.Epoch()
	m.unlockAndFlush()

	if _, derr := m.commander.Dispatch(epoch, []types.MotionCommand{types.Stop()}, rate); derr != nil {
		m.logger.Errorf("Safe stop after actuator fault failed: %v", derr)
	}
	return stepErr
}

// abortLocked turns the machine into a stopped, inactive WAITING machine
// and queues a stop under a fresh epoch.
func (m *PhaseMachine) abortLocked(phase types.Phase, err error) *StepError {
	m.active = false
	if rerr := m.rewindLocked(); rerr != nil {
		err = errors.Wrapf(err, "%v", rerr)
	}
	m.message = fmt.Sprintf("parking aborted in %s: %v", phase, err)
	m.commander.Invalidate()
	m.pending = []types.MotionCommand{types.Stop()}
	m.noteLocked(logger.LogLevelError, nil, "Parking aborted in %s: %v", phase, err)
	return &StepError{Phase: phase, Err: err}
}

// runPhaseLocked executes the handler for the current phase, converting a
// panic into an error.
func (m *PhaseMachine) runPhaseLocked() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	snap := m.store.Snapshot()
	now := m.clock.Now()
	return m.execute(m.tracker.Current(), snap, now)
}

// transition moves along the table and clears the timers of the phase left
// behind.
func (m *PhaseMachine) transition(ev librefsm.EventID) (types.Phase, error) {
	from := m.tracker.Current()
	to, err := m.tracker.Fire(ev)
	if err != nil {
		return from, err
	}
	for k := range m.timers {
		delete(m.timers, k)
	}
	m.noteLocked(logger.LogLevelInfo, map[string]interface{}{"from": from.String(), "to": to.String()},
		"Phase %s -> %s", from, to)
	return to, nil
}

func (m *PhaseMachine) issue(cmds ...types.MotionCommand) {
	m.pending = append(m.pending, cmds...)
}

// once reports true the first time it is called for l since the last
// reset and sets the latch.
func (m *PhaseMachine) once(l latch) bool {
	if m.latches[l] {
		return false
	}
	m.latches[l] = true
	return true
}

// startTimer records now under t unless the timer is already running.
func (m *PhaseMachine) startTimer(t timer, now time.Time) {
	if _, ok := m.timers[t]; !ok {
		m.timers[t] = now
	}
}

// elapsed returns the seconds since t started and whether it is running.
func (m *PhaseMachine) elapsed(t timer, now time.Time) (float64, bool) {
	start, ok := m.timers[t]
	if !ok {
		return 0, false
	}
	return elapsedSeconds(start, now), true
}

// Phase returns the current phase.
func (m *PhaseMachine) Phase() types.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker.Current()
}

// Active reports whether an attempt is running.
func (m *PhaseMachine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ParkingConfig returns a copy of the active config.
func (m *PhaseMachine) ParkingConfig() ParkingConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// UpdateParkingConfig merges a validated patch. Running timers keep their
// start times; new durations apply from the next step. A rejected patch
// leaves the config untouched.
func (m *PhaseMachine) UpdateParkingConfig(patch ParkingConfigPatch) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	next, err := m.cfg.Apply(patch)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = next
	m.mu.Unlock()

	m.logger.Infof("Parking config updated")
	if err := m.provider.StoreParkingConfig(next); err != nil {
		m.logger.Warnf("Failed to persist parking config: %v", err)
	}
	return nil
}

// Close releases the phase tracker.
func (m *PhaseMachine) Close() error {
	return m.tracker.Close()
}

// logNote is a log line produced under the lock and written after it is
// released.
type logNote struct {
	level  logger.LogLevel
	fields map[string]interface{}
	msg    string
}

func (m *PhaseMachine) noteLocked(level logger.LogLevel, fields map[string]interface{}, format string, args ...interface{}) {
	m.notes = append(m.notes, logNote{level: level, fields: fields, msg: fmt.Sprintf(format, args...)})
}

// unlockAndFlush releases the lock, then writes the notes queued under it.
func (m *PhaseMachine) unlockAndFlush() {
	notes := m.notes
	m.notes = nil
	m.mu.Unlock()

	for _, n := range notes {
		l := m.logger
		if n.fields != nil {
			l = l.WithFields(n.fields)
		}
		switch n.level {
		case logger.LogLevelError:
			l.Errorf("%s", n.msg)
		case logger.LogLevelWarning:
			l.Warnf("%s", n.msg)
		case logger.LogLevelDebug:
			l.Debugf("%s", n.msg)
		default:
			l.Infof("%s", n.msg)
		}
	}
}
