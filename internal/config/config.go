// Package config handles iotnode configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./iotnode.yaml, ~/.config/iotnode/iotnode.yaml,
// /etc/iotnode/iotnode.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"iotnode.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "iotnode", "iotnode.yaml"))
	}

	paths = append(paths, "/etc/iotnode/iotnode.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise, searches DefaultSearchPaths and returns the first
// that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all iotnode configuration.
type Config struct {
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Admin       AdminConfig       `yaml:"admin"`
	DataDir     string            `yaml:"data_dir"`
	LogLevel    string            `yaml:"log_level"`
	LogFormat   string            `yaml:"log_format"` // "text" (default) or "json"
}

// MQTTConfig defines the broker connection and the two topics of the
// command/telemetry protocol.
type MQTTConfig struct {
	// Broker is the broker URL (mqtt://, mqtts://, ssl://).
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// ClientID overrides the derived client identifier. If empty, a
	// stable id is derived from the persisted instance ID.
	ClientID string `yaml:"client_id"`
	// CommandTopic receives inbound command lines.
	CommandTopic string `yaml:"command_topic"`
	// TelemetryTopic receives outbound measurement records.
	TelemetryTopic string `yaml:"telemetry_topic"`
	// AvailabilityTopic carries the retained online/offline birth and
	// will messages. Defaults to "<telemetry_topic>/availability".
	AvailabilityTopic string `yaml:"availability_topic"`
	// ConnectTimeoutSec bounds the initial connection attempt. The
	// process exits if the broker is unreachable for this long at
	// startup (default 30).
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
}

// SensorConfig selects and parameterizes the raw reading source.
type SensorConfig struct {
	// Mode is "sim" or "iio".
	Mode string `yaml:"mode"`
	// IIOPath is the sysfs raw attribute for mode "iio".
	IIOPath string `yaml:"iio_path"`
	// SimCenter and SimJitter shape the simulated source for mode
	// "sim": readings are SimCenter ± SimJitter.
	SimCenter int `yaml:"sim_center"`
	SimJitter int `yaml:"sim_jitter"`
}

// CalibrationConfig holds the two reference (reading, value) pairs of
// the affine conversion. The field names follow the original device
// constants; note that the formula pairs v_1 with t_low (see
// internal/sensor.Calibration for the label mismatch).
type CalibrationConfig struct {
	TLow  float64 `yaml:"t_low"`
	THigh float64 `yaml:"t_high"`
	V1    float64 `yaml:"v_1"`
	V2    float64 `yaml:"v_2"`
}

// AdminConfig defines the optional local HTTP server for health,
// status, and the live event stream.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // bind address ("" = all interfaces)
	Port    int    `yaml:"port"`    // default 9180
}

// Load reads configuration from a YAML file. Environment variable
// references in the file are expanded before parsing, so secrets can
// be supplied as ${VAR}.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns the built-in configuration: simulated sensor, the
// reference calibration constants, admin server off.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:            "mqtt://192.168.1.216:1883",
			CommandTopic:      "iot/assignment2/topics/subscribe",
			TelemetryTopic:    "iot/assignment2/topics/publish",
			ConnectTimeoutSec: 30,
		},
		Sensor: SensorConfig{
			Mode:      "sim",
			IIOPath:   "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
			SimCenter: 1800,
			SimJitter: 120,
		},
		Calibration: CalibrationConfig{
			TLow:  0,
			THigh: 50,
			V1:    2100,
			V2:    1558,
		},
		Admin: AdminConfig{
			Port: 9180,
		},
		DataDir:  ".",
		LogLevel: "info",
	}
}

// applyDefaults fills derived fields left empty by the config file.
func (c *Config) applyDefaults() {
	if c.MQTT.AvailabilityTopic == "" && c.MQTT.TelemetryTopic != "" {
		c.MQTT.AvailabilityTopic = c.MQTT.TelemetryTopic + "/availability"
	}
	if c.MQTT.ConnectTimeoutSec <= 0 {
		c.MQTT.ConnectTimeoutSec = 30
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 9180
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}

// Validate reports the first problem that would prevent the node from
// starting. It is called once after Load, before any component is
// constructed.
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.MQTT.CommandTopic == "" {
		return fmt.Errorf("mqtt.command_topic is required")
	}
	if c.MQTT.TelemetryTopic == "" {
		return fmt.Errorf("mqtt.telemetry_topic is required")
	}
	switch c.Sensor.Mode {
	case "sim":
	case "iio":
		if c.Sensor.IIOPath == "" {
			return fmt.Errorf("sensor.iio_path is required for sensor.mode \"iio\"")
		}
	default:
		return fmt.Errorf("sensor.mode %q is not one of: sim, iio", c.Sensor.Mode)
	}
	if c.Calibration.THigh == c.Calibration.TLow {
		return fmt.Errorf("calibration reference values t_low and t_high must differ")
	}
	if c.Calibration.V1 == c.Calibration.V2 {
		return fmt.Errorf("calibration reference readings v_1 and v_2 must differ")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
