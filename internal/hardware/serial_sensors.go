package hardware

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"parking-service/internal/logger"
	"parking-service/internal/parking"
	"parking-service/internal/types"
)

// staleAfter is how long a serial frame stays usable.
const staleAfter = 500 * time.Millisecond

// SerialRangeBridge reads ranges from a microcontroller that streams one
// line per sweep: "fr,ml,mr,rl,rr" in centimetres, -1 for no echo.
type SerialRangeBridge struct {
	logger *logger.Logger
	port   serial.Port

	mu       sync.Mutex
	latest   map[types.SensorName]float64
	received time.Time
	failed   []error

	done chan struct{}
	wg   sync.WaitGroup
}

// SerialPorts lists the serial devices present, for the CLI's port hint.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

func NewSerialRangeBridge(portName string, l *logger.Logger) (*SerialRangeBridge, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: SerialBaud})
	if err != nil {
		return nil, errors.Wrapf(err, "serial open %s", portName)
	}
	if err := port.SetReadTimeout(time.Second); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "serial read timeout")
	}

	b := &SerialRangeBridge{
		logger: l.WithTag("serial"),
		port:   port,
		done:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.readLoop()
	b.logger.Infof("Reading ranges from %s", portName)
	return b, nil
}

func (b *SerialRangeBridge) readLoop() {
	defer b.wg.Done()
	reader := bufio.NewReader(b.port)

	for {
		select {
		case <-b.done:
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			// repeated read timeouts surface as ErrNoProgress
			if errors.Is(err, io.ErrNoProgress) {
				b.logger.Debugf("No data on serial port")
				continue
			}
			b.logger.Warnf("Serial read error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		readings, err := ParseRangeLine(line)
		if readings == nil {
			// banners and noise
			b.logger.Debugf("Ignoring serial line %q: %v", line, err)
			continue
		}

		b.mu.Lock()
		b.latest = readings
		b.received = time.Now()
		b.failed = nil
		if err != nil {
			b.failed = []error{err}
		}
		b.mu.Unlock()
	}
}

// ParseRangeLine parses one comma separated sweep in channel order. A line
// with the wrong field count yields nil. Fields that are not numbers or are
// negative are reported as sensor errors and left out.
func ParseRangeLine(line string) (map[types.SensorName]float64, error) {
	parts := strings.Split(line, ",")
	names := types.AllSensors()
	if len(parts) != len(names) {
		return nil, errors.Errorf("expected %d fields, got %d", len(names), len(parts))
	}

	out := make(map[types.SensorName]float64, len(names))
	var failed []error
	for i, name := range names {
		d, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			failed = append(failed, &parking.SensorError{Sensor: name, Err: err})
			continue
		}
		if d < 0 {
			failed = append(failed, &parking.SensorError{Sensor: name, Err: errors.New("no echo")})
			continue
		}
		out[name] = d
	}
	return out, parking.JoinSensorErrors(failed)
}

// Read returns the most recent sweep.
func (b *SerialRangeBridge) Read(ctx context.Context) (map[types.SensorName]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.latest == nil || time.Since(b.received) > staleAfter {
		var failed []error
		for _, name := range types.AllSensors() {
			failed = append(failed, &parking.SensorError{Sensor: name, Err: errors.New("stale serial frame")})
		}
		return map[types.SensorName]float64{}, parking.JoinSensorErrors(failed)
	}

	out := make(map[types.SensorName]float64, len(b.latest))
	for k, v := range b.latest {
		out[k] = v
	}
	return out, parking.JoinSensorErrors(b.failed)
}

func (b *SerialRangeBridge) Close() error {
	close(b.done)
	err := b.port.Close()
	b.wg.Wait()
	return err
}
