package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"parking-service/internal/hardware"
	"parking-service/internal/parking"
)

const sample = `
tick_interval: 50ms
redis:
  port: 6380
mqtt:
  broker: tcp://broker.local:1883
hardware:
  sensors: serial
  ultrasonic:
    front_right:
      trigger: {chip: 1, line: 3}
      echo: {chip: 1, line: 4}
parking:
  stop_distance: 35
  alignment_tolerance: 0
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parking.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMissingFileUsesDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if f.TickInterval() != 100*time.Millisecond || f.StatusInterval() != time.Second {
		t.Errorf("intervals = %s, %s", f.TickInterval(), f.StatusInterval())
	}
	if r := f.Redis(); r.Host != "127.0.0.1" || r.Port != 6379 || r.Disabled {
		t.Errorf("redis = %+v", r)
	}
	if f.MQTT().Broker != "" {
		t.Errorf("mqtt enabled by default: %+v", f.MQTT())
	}
	if f.ParkingConfig() != parking.DefaultParkingConfig() {
		t.Errorf("parking = %+v", f.ParkingConfig())
	}
	if f.Hardware().Sensors != "gpio" {
		t.Errorf("sensors = %q", f.Hardware().Sensors)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	f, err := NewFile(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if f.TickInterval() != 50*time.Millisecond {
		t.Errorf("tick = %s", f.TickInterval())
	}
	if r := f.Redis(); r.Host != "127.0.0.1" || r.Port != 6380 {
		t.Errorf("redis = %+v", r)
	}
	if m := f.MQTT(); m.Broker != "tcp://broker.local:1883" || m.Prefix != "parking" {
		t.Errorf("mqtt = %+v", m)
	}

	hw := f.Hardware()
	def := hardware.DefaultConfig()
	if hw.Sensors != "serial" {
		t.Errorf("sensors = %q", hw.Sensors)
	}
	if got := hw.Ultrasonic["front_right"].Echo; got != (hardware.Pin{Chip: 1, Line: 4}) {
		t.Errorf("front_right echo = %+v", got)
	}
	if hw.Ultrasonic["rear_right"] != def.Ultrasonic["rear_right"] {
		t.Errorf("rear_right lost its default pins: %+v", hw.Ultrasonic["rear_right"])
	}
	if hw.ServoPort != def.ServoPort {
		t.Errorf("servo port = %q", hw.ServoPort)
	}

	pc := f.ParkingConfig()
	if pc.StopDistance != 35 || pc.AlignmentTolerance != 0 {
		t.Errorf("parking = %+v", pc)
	}
	if pc.ForwardSpeed != parking.DefaultParkingConfig().ForwardSpeed {
		t.Errorf("forward speed = %v", pc.ForwardSpeed)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	for name, body := range map[string]string{
		"invalid parking value": "parking:\n  backward_speed: 250\n",
		"unknown key":           "tick_intervall: 10ms\n",
		"malformed":             "redis: [\n",
	} {
		if _, err := NewFile(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEmptyFileIsDefaults(t *testing.T) {
	f, err := NewFile(writeConfig(t, "  \n"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if f.Listen() != "127.0.0.1:8470" {
		t.Errorf("listen = %q", f.Listen())
	}
}

func TestStoreParkingConfigPersists(t *testing.T) {
	path := writeConfig(t, sample)
	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	cfg := f.ParkingConfig()
	cfg.CorrectionThreshold = 7
	if err := f.StoreParkingConfig(cfg); err != nil {
		t.Fatalf("StoreParkingConfig: %v", err)
	}

	reloaded, err := NewFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.ParkingConfig(); got != cfg {
		t.Errorf("reloaded parking = %+v, want %+v", got, cfg)
	}
	if reloaded.TickInterval() != 50*time.Millisecond {
		t.Errorf("tick interval lost on save: %s", reloaded.TickInterval())
	}
}

func TestInMemoryFileDoesNotSave(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	cfg := parking.DefaultParkingConfig()
	cfg.StopDistance = 20
	if err := f.StoreParkingConfig(cfg); err != nil {
		t.Fatalf("StoreParkingConfig: %v", err)
	}
	if f.ParkingConfig().StopDistance != 20 {
		t.Errorf("stop distance = %v", f.ParkingConfig().StopDistance)
	}
}
