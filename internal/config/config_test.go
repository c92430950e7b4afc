package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iotnode.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
mqtt:
  broker: mqtt://broker.local:1883
  command_topic: node/commands
  telemetry_topic: node/telemetry
sensor:
  mode: iio
  iio_path: /sys/bus/iio/devices/iio:device0/in_voltage3_raw
calibration:
  t_low: 0
  t_high: 50
  v_1: 2100
  v_2: 1558
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Broker != "mqtt://broker.local:1883" {
		t.Errorf("Broker = %q", cfg.MQTT.Broker)
	}
	if cfg.Sensor.Mode != "iio" {
		t.Errorf("Sensor.Mode = %q, want iio", cfg.Sensor.Mode)
	}
	if cfg.Calibration.V1 != 2100 || cfg.Calibration.V2 != 1558 {
		t.Errorf("Calibration = %+v", cfg.Calibration)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadAppliesDerivedDefaults(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: mqtt://broker.local:1883
  command_topic: node/commands
  telemetry_topic: node/telemetry
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.MQTT.AvailabilityTopic, "node/telemetry/availability"; got != want {
		t.Errorf("AvailabilityTopic = %q, want %q", got, want)
	}
	if cfg.MQTT.ConnectTimeoutSec != 30 {
		t.Errorf("ConnectTimeoutSec = %d, want 30", cfg.MQTT.ConnectTimeoutSec)
	}
	if cfg.Admin.Port != 9180 {
		t.Errorf("Admin.Port = %d, want 9180", cfg.Admin.Port)
	}
	// Unset sensor and calibration sections fall back to Default().
	if cfg.Sensor.Mode != "sim" {
		t.Errorf("Sensor.Mode = %q, want sim", cfg.Sensor.Mode)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("IOTNODE_TEST_PW", "hunter2")
	path := writeConfig(t, `
mqtt:
  broker: mqtt://broker.local:1883
  command_topic: node/commands
  telemetry_topic: node/telemetry
  password: ${IOTNODE_TEST_PW}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Password != "hunter2" {
		t.Errorf("Password = %q, want expanded env value", cfg.MQTT.Password)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing broker", func(c *Config) { c.MQTT.Broker = "" }, "mqtt.broker"},
		{"missing command topic", func(c *Config) { c.MQTT.CommandTopic = "" }, "command_topic"},
		{"missing telemetry topic", func(c *Config) { c.MQTT.TelemetryTopic = "" }, "telemetry_topic"},
		{"bad sensor mode", func(c *Config) { c.Sensor.Mode = "spi" }, "sensor.mode"},
		{"iio without path", func(c *Config) { c.Sensor.Mode = "iio"; c.Sensor.IIOPath = "" }, "iio_path"},
		{"flat calibration values", func(c *Config) { c.Calibration.THigh = c.Calibration.TLow }, "t_low"},
		{"flat calibration readings", func(c *Config) { c.Calibration.V2 = c.Calibration.V1 }, "v_1"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestFindConfigExplicitMustExist(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("FindConfig() with missing explicit path: want error")
	}

	path := writeConfig(t, "log_level: info\n")
	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("FindConfig() = %q, want %q", got, path)
	}
}
