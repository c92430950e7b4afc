// Package sensor provides raw analog readings and their conversion to
// a calibrated physical quantity.
//
// A [Sensor] yields one uncalibrated sample per Read call. The
// dispatcher goroutine is the sole owner of the sensor handle;
// implementations are not required to be safe for concurrent use.
package sensor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Sensor is a source of raw analog readings.
type Sensor interface {
	// Read takes one raw sample. It returns an error on a hardware
	// fault; callers treat that as fatal to the in-flight command
	// only, not to the process.
	Read(ctx context.Context) (uint16, error)
}

// IIOSensor reads raw samples from a Linux industrial-I/O sysfs
// attribute, e.g. /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
// This is the host-Linux counterpart of a one-shot ADC channel.
type IIOSensor struct {
	path string
}

// NewIIO creates a sensor backed by the sysfs attribute at path. It
// performs one probe read so a missing or unreadable channel fails at
// startup rather than mid-command.
func NewIIO(path string) (*IIOSensor, error) {
	s := &IIOSensor{path: path}
	if _, err := s.Read(context.Background()); err != nil {
		return nil, fmt.Errorf("probe adc channel: %w", err)
	}
	return s, nil
}

// Read implements [Sensor]. Each call re-reads the attribute, which
// triggers one hardware conversion in the IIO one-shot model.
func (s *IIOSensor) Read(ctx context.Context) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	raw, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parse adc value from %s: %w", s.path, err)
	}
	return uint16(raw), nil
}
