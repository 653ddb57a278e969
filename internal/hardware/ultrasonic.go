package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"

	"parking-service/internal/logger"
	"parking-service/internal/parking"
	"parking-service/internal/types"
)

type ranger struct {
	name    types.SensorName
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line

	mu     sync.Mutex
	rising time.Duration
	echoes chan time.Duration
}

// handleEdge pairs rising and falling echo edges into pulse widths. The
// kernel timestamps both edges, so scheduling latency does not skew them.
func (r *ranger) handleEdge(evt gpiocdev.LineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		r.rising = evt.Timestamp
	case gpiocdev.LineEventFallingEdge:
		if r.rising == 0 {
			return
		}
		width := evt.Timestamp - r.rising
		r.rising = 0
		select {
		case r.echoes <- width:
		default:
		}
	}
}

func (r *ranger) drain() {
	for {
		select {
		case <-r.echoes:
		default:
			return
		}
	}
}

// PulseToDistance converts an echo width into centimetres, reporting
// false when nothing answered within range.
func PulseToDistance(width time.Duration) (float64, bool) {
	cm := float64(width.Microseconds()) / usPerCm
	if cm <= 0 || cm > maxRangeCm {
		return 0, false
	}
	return cm, true
}

// UltrasonicArray fires HC-SR04 rangers one after another so their echoes
// never cross.
type UltrasonicArray struct {
	logger  *logger.Logger
	chips   map[int]*gpiocdev.Chip
	rangers []*ranger
}

func NewUltrasonicArray(cfg Config, l *logger.Logger) (*UltrasonicArray, error) {
	a := &UltrasonicArray{
		logger: l.WithTag("ultrasonic"),
		chips:  make(map[int]*gpiocdev.Chip),
	}

	for _, name := range types.AllSensors() {
		pins, ok := cfg.Ultrasonic[string(name)]
		if !ok {
			a.Close()
			return nil, errors.Errorf("no pins configured for %s", name)
		}
		r, err := a.openRanger(name, pins)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rangers = append(a.rangers, r)
	}
	return a, nil
}

func (a *UltrasonicArray) chip(id int) (*gpiocdev.Chip, error) {
	if chip, ok := a.chips[id]; ok {
		return chip, nil
	}
	chip, err := gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", id))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open GPIO chip %d", id)
	}
	a.chips[id] = chip
	return chip, nil
}

func (a *UltrasonicArray) openRanger(name types.SensorName, pins RangerPins) (*ranger, error) {
	r := &ranger{name: name, echoes: make(chan time.Duration, 1)}

	tc, err := a.chip(pins.Trigger.Chip)
	if err != nil {
		return nil, err
	}
	r.trigger, err = tc.RequestLine(pins.Trigger.Line,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to request %s trigger line %d", name, pins.Trigger.Line)
	}

	ec, err := a.chip(pins.Echo.Chip)
	if err != nil {
		r.trigger.Close()
		return nil, err
	}
	r.echo, err = ec.RequestLine(pins.Echo.Line,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(r.handleEdge),
		gpiocdev.WithConsumer(Consumer))
	if err != nil {
		r.trigger.Close()
		return nil, errors.Wrapf(err, "failed to request %s echo line %d", name, pins.Echo.Line)
	}

	a.logger.Infof("Configured ranger %s: trigger=%d/%d echo=%d/%d",
		name, pins.Trigger.Chip, pins.Trigger.Line, pins.Echo.Chip, pins.Echo.Line)
	return r, nil
}

func (a *UltrasonicArray) measure(ctx context.Context, r *ranger) (float64, error) {
	r.drain()

	if err := r.trigger.SetValue(1); err != nil {
		return 0, errors.Wrap(err, "raise trigger")
	}
	time.Sleep(triggerPulse)
	if err := r.trigger.SetValue(0); err != nil {
		return 0, errors.Wrap(err, "drop trigger")
	}

	timer := time.NewTimer(echoTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return 0, errors.New("echo timeout")
	case width := <-r.echoes:
		d, ok := PulseToDistance(width)
		if !ok {
			return 0, errors.Errorf("echo out of range (%s)", width)
		}
		return d, nil
	}
}

// Read ranges every sensor once. Failed sensors are left out of the result
// and reported as joined sensor errors.
func (a *UltrasonicArray) Read(ctx context.Context) (map[types.SensorName]float64, error) {
	out := make(map[types.SensorName]float64, len(a.rangers))
	var failed []error

	for i, r := range a.rangers {
		if i > 0 {
			time.Sleep(settleInterval)
		}
		d, err := a.measure(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			failed = append(failed, &parking.SensorError{Sensor: r.name, Err: err})
			continue
		}
		out[r.name] = d
	}
	return out, parking.JoinSensorErrors(failed)
}

func (a *UltrasonicArray) Close() error {
	for _, r := range a.rangers {
		r.echo.Close()
		r.trigger.Close()
	}
	for _, chip := range a.chips {
		chip.Close()
	}
	a.logger.Debugf("Closed ultrasonic array")
	return nil
}
