package core

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"parking-service/internal/logger"
	"parking-service/internal/messaging"
	"parking-service/internal/parking"
	"parking-service/internal/types"
)

const (
	DefaultTickInterval   = 100 * time.Millisecond
	DefaultStatusInterval = time.Second
)

type Options struct {
	TickInterval   time.Duration
	StatusInterval time.Duration
	// Messaging is optional; without it commands only arrive through
	// HandleCommand.
	Messaging  MessagingClient
	Publishers []StatusPublisher
}

// ParkingSystem drives a PhaseMachine from a range sensor array: one tick
// reads all sensors, feeds the store and steps the machine.
type ParkingSystem struct {
	machine    *parking.PhaseMachine
	sensors    RangeSensorArray
	redis      MessagingClient
	publishers []StatusPublisher
	logger     *logger.Logger

	tickInterval   time.Duration
	statusInterval time.Duration

	mu     sync.Mutex
	faults map[int]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewParkingSystem(machine *parking.PhaseMachine, sensors RangeSensorArray, opts Options, l *logger.Logger) *ParkingSystem {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if l == nil {
		l = logger.NewLogger(nil, logger.LogLevelNone)
	}
	return &ParkingSystem{
		machine:        machine,
		sensors:        sensors,
		redis:          opts.Messaging,
		publishers:     opts.Publishers,
		logger:         l.WithTag("system"),
		tickInterval:   opts.TickInterval,
		statusInterval: opts.StatusInterval,
		faults:         make(map[int]bool),
	}
}

// Start connects messaging and launches the tick and status loops. They
// run until ctx is cancelled or Shutdown is called.
func (s *ParkingSystem) Start(ctx context.Context) error {
	s.logger.Infof("Starting parking system (tick %s, status %s)", s.tickInterval, s.statusInterval)

	if s.redis != nil {
		s.redis.SetCallbacks(messaging.Callbacks{
			CommandCallback: s.HandleCommand,
			ConfigCallback:  s.HandleConfig,
		})
		if err := s.redis.Connect(); err != nil {
			return errors.Wrap(err, "failed to connect to Redis")
		}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.tickLoop()
	go s.statusLoop()

	if s.redis != nil {
		if err := s.redis.StartListening(); err != nil {
			return errors.Wrap(err, "failed to start Redis listeners")
		}
	}

	s.logger.Infof("System started successfully")
	return nil
}

func (s *ParkingSystem) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Errorf("Tick failed: %v", err)
			}
		}
	}
}

func (s *ParkingSystem) statusLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			status := s.PublishStatus()
			if status.Active {
				s.logger.Infof("%s: %s", status.Phase, status.Message)
			}
		}
	}
}

// Tick runs one read-update-step cycle. A failed sensor keeps its last
// known value. A step abort is reported as a fault and returned.
func (s *ParkingSystem) Tick(ctx context.Context) error {
	readCtx, cancel := context.WithTimeout(ctx, s.tickInterval)
	readings, err := s.sensors.Read(readCtx)
	cancel()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readings == nil {
		readings = make(map[types.SensorName]float64)
	}

	var missing []types.SensorName
	for _, name := range types.AllSensors() {
		if _, ok := readings[name]; ok {
			continue
		}
		readings[name] = s.machine.LastKnown(name)
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		s.logger.Warnf("Using last known distance for %v: %v", missing, err)
		s.setFault(messaging.FaultSensorRead, true, "ultrasonic read failed")
	} else {
		s.setFault(messaging.FaultSensorRead, false, "")
	}

	s.machine.UpdateSensors(readings)

	if err := s.machine.Step(); err != nil {
		s.setFault(messaging.FaultStepAborted, true, err.Error())
		s.PublishStatus()
		return err
	}
	return nil
}

// PublishStatus sends the current snapshot to Redis and every publisher.
func (s *ParkingSystem) PublishStatus() types.Status {
	status := s.machine.Status()
	if s.redis != nil {
		if err := s.redis.PublishStatus(status); err != nil {
			s.logger.Debugf("Redis status publish failed: %v", err)
		}
	}
	for _, p := range s.publishers {
		if err := p.PublishStatus(status); err != nil {
			s.logger.Debugf("Status publish failed: %v", err)
		}
	}
	return status
}

// setFault reports edges only; a fault already present is not re-sent.
func (s *ParkingSystem) setFault(code int, present bool, description string) {
	s.mu.Lock()
	was := s.faults[code]
	s.faults[code] = present
	s.mu.Unlock()

	if was == present || s.redis == nil {
		return
	}
	var err error
	if present {
		err = s.redis.ReportFaultPresent(code, description)
	} else {
		err = s.redis.ReportFaultAbsent(code)
	}
	if err != nil {
		s.logger.Warnf("Failed to report fault %d: %v", code, err)
	}
}

// Faults returns the codes currently reported present.
func (s *ParkingSystem) Faults() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for code, present := range s.faults {
		if present {
			out = append(out, code)
		}
	}
	return out
}

func (s *ParkingSystem) Status() types.Status {
	return s.machine.Status()
}

func (s *ParkingSystem) Sensors() map[types.SensorName]float64 {
	return s.machine.Sensors()
}

func (s *ParkingSystem) ParkingConfig() parking.ParkingConfig {
	return s.machine.ParkingConfig()
}

func (s *ParkingSystem) Shutdown() {
	s.logger.Infof("Shutting down parking system")
	if err := s.machine.Stop(); err != nil {
		s.logger.Warnf("Failed to stop vehicle: %v", err)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.PublishStatus()
	if s.redis != nil {
		s.redis.Close()
	}
	if err := s.machine.Close(); err != nil {
		s.logger.Warnf("Failed to close phase machine: %v", err)
	}
}
