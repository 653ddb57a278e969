package config

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"parking-service/internal/hardware"
	"parking-service/internal/parking"
)

const DefaultPath = "/etc/parking-service.yaml"

var (
	defaultTickInterval   = 100 * time.Millisecond
	defaultStatusInterval = time.Second
	defaultListen         = "127.0.0.1:8470"
	defaultRedis          = RedisConfig{Host: "127.0.0.1", Port: 6379}
	defaultMQTT           = MQTTConfig{ClientID: "parking-service", Prefix: "parking"}
)

var _ parking.ConfigProvider = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

type HTTPConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

type RedisConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
	// Disabled runs without Redis, commands then come over HTTP or MQTT.
	Disabled bool `yaml:"disabled,omitempty"`
}

type MQTTConfig struct {
	// An empty broker disables MQTT.
	Broker   string `yaml:"broker,omitempty"`
	ClientID string `yaml:"client_id,omitempty"`
	Prefix   string `yaml:"topic,omitempty"`
}

// RawFileConfig mirrors the YAML file. Nil sections fall back to defaults.
type RawFileConfig struct {
	TickInterval   *time.Duration              `yaml:"tick_interval,omitempty"`
	StatusInterval *time.Duration              `yaml:"status_interval,omitempty"`
	HTTP           *HTTPConfig                 `yaml:"http,omitempty"`
	Redis          *RedisConfig                `yaml:"redis,omitempty"`
	MQTT           *MQTTConfig                 `yaml:"mqtt,omitempty"`
	Hardware       *hardware.Config            `yaml:"hardware,omitempty"`
	Parking        *parking.ParkingConfigPatch `yaml:"parking,omitempty"`
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// NewFileFromConfig wraps an in-memory config. An empty path never saves.
func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}
	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

func (f *File) TickInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.c.TickInterval != nil && *f.c.TickInterval > 0 {
		return *f.c.TickInterval
	}
	return defaultTickInterval
}

func (f *File) StatusInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.c.StatusInterval != nil && *f.c.StatusInterval > 0 {
		return *f.c.StatusInterval
	}
	return defaultStatusInterval
}

func (f *File) Listen() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.c.HTTP != nil && f.c.HTTP.Listen != "" {
		return f.c.HTTP.Listen
	}
	return defaultListen
}

func (f *File) Redis() RedisConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r := defaultRedis
	if f.c.Redis != nil {
		if f.c.Redis.Host != "" {
			r.Host = f.c.Redis.Host
		}
		if f.c.Redis.Port != 0 {
			r.Port = f.c.Redis.Port
		}
		r.Disabled = f.c.Redis.Disabled
	}
	return r
}

func (f *File) MQTT() MQTTConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m := defaultMQTT
	if f.c.MQTT != nil {
		m.Broker = f.c.MQTT.Broker
		if f.c.MQTT.ClientID != "" {
			m.ClientID = f.c.MQTT.ClientID
		}
		if f.c.MQTT.Prefix != "" {
			m.Prefix = f.c.MQTT.Prefix
		}
	}
	return m
}

// Hardware returns the pin mapping.
func (f *File) Hardware() hardware.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.c.Hardware == nil {
		return hardware.DefaultConfig()
	}
	return *f.c.Hardware
}

// ParkingConfig implements parking.ConfigProvider: defaults overlaid with
// the parking section. Load has already validated the result.
func (f *File) ParkingConfig() parking.ParkingConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c := parking.DefaultParkingConfig()
	if f.c.Parking == nil {
		return c
	}
	next, err := c.Apply(*f.c.Parking)
	if err != nil {
		logrus.WithError(err).Warn("ignoring invalid parking section")
		return c
	}
	return next
}

// StoreParkingConfig implements parking.ConfigProvider and writes the file
// when it has a path.
func (f *File) StoreParkingConfig(c parking.ParkingConfig) error {
	f.mu.Lock()
	p := c.AsPatch()
	f.c.Parking = &p
	f.mu.Unlock()

	if f.filepath == "" {
		return nil
	}
	return f.Save()
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	// decode over the defaults so a partial hardware section keeps the
	// remaining pins
	hw := hardware.DefaultConfig()
	conf := RawFileConfig{Hardware: &hw}
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&conf); err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if conf.Parking != nil {
		if _, err := parking.DefaultParkingConfig().Apply(*conf.Parking); err != nil {
			return pkgerrors.Wrapf(err, "invalid parking section in %s", f.filepath)
		}
	}

	f.c = &conf
	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := yaml.NewEncoder(fp)
	enc.SetIndent(2)
	if err := enc.Encode(f.c); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}
	return enc.Close()
}

func (f *File) LogrusFields() logrus.Fields {
	r := f.Redis()
	return logrus.Fields{
		"tickInterval":   f.TickInterval().String(),
		"statusInterval": f.StatusInterval().String(),
		"listen":         f.Listen(),
		"redis":          r.Host,
		"redisDisabled":  r.Disabled,
		"mqtt":           f.MQTT().Broker,
		"sensors":        f.Hardware().Sensors,
	}
}
