package messaging

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"parking-service/internal/logger"
	"parking-service/internal/parking"
	"parking-service/internal/types"
)

// Redis keys
const (
	CommandList   = "parking:command"
	ConfigList    = "parking:config"
	StatusHash    = "parking"
	StatusChannel = "parking"
	SensorHash    = "parking:sensors"
	FaultSet      = "parking:fault"
	FaultStream   = "events:faults"
	faultGroup    = "parking"
)

// Fault codes reported on the events stream
const (
	FaultStepAborted   = 1
	FaultEmergencyStop = 2
	FaultSensorRead    = 3
)

type Callbacks struct {
	CommandCallback func(string) error // "start", "stop", "reset", "emergency-stop"
	ConfigCallback  func([]byte) error // JSON encoded parking config patch
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l.WithTag("redis"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Infof("Redis connection failed: %v", err)
		return errors.Wrap(err, "redis connection failed")
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the list command listeners.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	r.wg.Add(2)
	go r.listCommandListener(CommandList, r.handleCommand)
	go r.listCommandListener(ConfigList, r.handleConfig)

	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// short BRPOP timeout so cancellation is noticed
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if errors.Is(err, context.Canceled) {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				// avoid spinning while the server is unreachable
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) handleCommand(value string) error {
	if r.callbacks.CommandCallback == nil {
		return nil
	}
	switch value {
	case "start", "stop", "reset", "emergency-stop":
		return r.callbacks.CommandCallback(value)
	default:
		r.logger.Infof("Invalid parking command value: %s", value)
		return fmt.Errorf("invalid parking command: %s", value)
	}
}

func (r *RedisClient) handleConfig(value string) error {
	if r.callbacks.ConfigCallback == nil {
		return nil
	}
	return r.callbacks.ConfigCallback([]byte(value))
}

// PublishStatus writes the status snapshot into the parking hash and
// notifies subscribers in one pipeline.
func (r *RedisClient) PublishStatus(status types.Status) error {
	fields := map[string]interface{}{
		"phase":        status.Phase,
		"phase-number": status.PhaseOrdinal,
		"status":       status.Message,
		"active":       strconv.FormatBool(status.Active),
		"completed":    strconv.FormatBool(status.Completed),
		"bias":         string(status.Bias),
		"attempt":      status.AttemptID,
		"timestamp":    time.Now().Format(time.RFC3339),
	}
	for name, d := range status.SensorDistances {
		fields["sensor:"+string(name)] = strconv.FormatFloat(d, 'f', 1, 64)
	}
	for name, set := range status.SensorFlags {
		fields["flag:"+string(name)] = strconv.FormatBool(set)
	}

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, StatusHash, fields)
	pipe.Publish(r.ctx, StatusChannel, "status")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish parking status: %v", err)
		return err
	}
	r.logger.Debugf("Published parking status: %s", status.Phase)
	return nil
}

// ReportFaultPresent reports a fault as present to Redis
func (r *RedisClient) ReportFaultPresent(code int, description string) error {
	r.logger.Infof("Reporting fault present: code=%d, description=%s", code, description)

	pipe := r.client.Pipeline()
	pipe.SAdd(r.ctx, FaultSet, code)
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: FaultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group":       faultGroup,
			"code":        code,
			"description": description,
			"ts":          time.Now().UnixMilli(),
		},
	})
	pipe.Publish(r.ctx, StatusChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Infof("Failed to report fault present: %v", err)
		return err
	}
	return nil
}

// ReportFaultAbsent reports a fault as cleared
func (r *RedisClient) ReportFaultAbsent(code int) error {
	r.logger.Infof("Reporting fault absent: code=%d", code)

	pipe := r.client.Pipeline()
	pipe.SRem(r.ctx, FaultSet, code)
	pipe.XAdd(r.ctx, &redis.XAddArgs{
		Stream: FaultStream,
		MaxLen: 1000,
		Values: map[string]interface{}{
			"group": faultGroup,
			"code":  -code, // negative code means cleared
		},
	})
	pipe.Publish(r.ctx, StatusChannel, "fault")

	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Infof("Failed to report fault absent: %v", err)
		return err
	}
	return nil
}

// SendCommand pushes a command onto a list, the producer side of the
// list command listeners.
func (r *RedisClient) SendCommand(list, command string) error {
	if err := r.client.LPush(r.ctx, list, command).Err(); err != nil {
		return errors.Wrapf(err, "push %s to %s", command, list)
	}
	return nil
}

// Read implements a range sensor array backed by the parking:sensors hash,
// which an external ranging process fills with ultrasonic_N fields in cm.
// Missing or malformed fields are returned as sensor errors and left out of
// the result.
func (r *RedisClient) Read(ctx context.Context) (map[types.SensorName]float64, error) {
	values, err := r.client.HGetAll(ctx, SensorHash).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read sensor hash")
	}
	return ParseSensorFields(values)
}

// ParseSensorFields converts channel fields into named distances. Negative
// readings are clamped to 0.
func ParseSensorFields(values map[string]string) (map[types.SensorName]float64, error) {
	out := make(map[types.SensorName]float64, len(types.AllSensors()))
	var failed []error
	for _, name := range types.AllSensors() {
		raw, ok := values[name.Channel()]
		if !ok {
			failed = append(failed, &parking.SensorError{Sensor: name, Err: errors.New("no reading")})
			continue
		}
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			failed = append(failed, &parking.SensorError{Sensor: name, Err: err})
			continue
		}
		if d < 0 {
			d = 0
		}
		out[name] = d
	}
	return out, parking.JoinSensorErrors(failed)
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Infof("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
