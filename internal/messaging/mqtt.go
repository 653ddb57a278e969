package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"parking-service/internal/logger"
	"parking-service/internal/types"
)

// MQTTConfig addresses the broker and the topic prefix. Status goes to
// <prefix>/status, commands are read from <prefix>/command.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Prefix   string
	QoS      byte
}

// MQTTEmitter publishes status snapshots to an MQTT broker and optionally
// accepts the same commands as the Redis command list.
type MQTTEmitter struct {
	cfg    MQTTConfig
	logger *logger.Logger
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	failures  uint64
}

func NewMQTTEmitter(cfg MQTTConfig, l *logger.Logger) *MQTTEmitter {
	if cfg.Prefix == "" {
		cfg.Prefix = "parking"
	}
	return &MQTTEmitter{cfg: cfg, logger: l.WithTag("mqtt")}
}

// Connect establishes the broker connection with automatic reconnects.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = fmt.Sprintf("tcp://%s", broker)
	}
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.Infof("MQTT connection established to %s", e.cfg.Broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warnf("MQTT connection lost, will auto-reconnect: %v", err)
	}

	e.client = mqtt.NewClient(opts)

	e.logger.Infof("Connecting to MQTT broker %s", e.cfg.Broker)
	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "mqtt connection failed")
	}
	e.setConnected(true)
	return nil
}

// SubscribeCommands routes messages on <prefix>/command to handler.
func (e *MQTTEmitter) SubscribeCommands(handler func(string) error) error {
	if e.client == nil {
		return errors.New("mqtt not connected")
	}
	topic := e.CommandTopic()
	token := e.client.Subscribe(topic, e.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		cmd := string(msg.Payload())
		e.logger.Debugf("Received command on %s: %s", msg.Topic(), cmd)
		if err := handler(cmd); err != nil {
			e.logger.Warnf("Error handling MQTT command %q: %v", cmd, err)
		}
	})
	if !token.WaitTimeout(5 * time.Second) {
		return errors.Errorf("subscribe %s: timeout", topic)
	}
	return errors.Wrapf(token.Error(), "subscribe %s", topic)
}

func (e *MQTTEmitter) StatusTopic() string  { return e.cfg.Prefix + "/status" }
func (e *MQTTEmitter) CommandTopic() string { return e.cfg.Prefix + "/command" }

// PublishStatus sends the snapshot as JSON.
func (e *MQTTEmitter) PublishStatus(status types.Status) error {
	if !e.isConnected() {
		e.countFailure()
		return errors.New("mqtt not connected")
	}

	payload, err := json.Marshal(status)
	if err != nil {
		e.countFailure()
		return errors.Wrap(err, "marshal status")
	}

	token := e.client.Publish(e.StatusTopic(), e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countFailure()
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countFailure()
		return errors.Wrap(err, "publish failed")
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	e.logger.Debugf("Status published to %s (%d bytes)", e.StatusTopic(), len(payload))
	return nil
}

// Stats returns the number of published and failed status messages.
func (e *MQTTEmitter) Stats() (published, failures uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.failures
}

func (e *MQTTEmitter) Close() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	e.setConnected(false)
	return nil
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countFailure() {
	e.mu.Lock()
	e.failures++
	e.mu.Unlock()
}
