// Package telemetry defines the measurement record published to the
// telemetry topic and its wire encoding.
package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one sample emitted during a measure command.
type Record struct {
	// Remaining counts down across one command: amount-1 for the
	// first sample, 0 for the last.
	Remaining uint64
	// Value is the calibrated physical quantity.
	Value float64
	// UptimeMS is milliseconds since process start at the moment the
	// sample was taken.
	UptimeMS uint64
}

// Format renders the record in the wire encoding
// "<remaining>,<value to 2 decimal places>,<uptime_ms>",
// e.g. "3,24.17,105321".
func (r Record) Format() string {
	return fmt.Sprintf("%d,%.2f,%d", r.Remaining, r.Value, r.UptimeMS)
}

// Parse decodes the wire encoding produced by [Record.Format].
// Remaining and UptimeMS round-trip exactly; Value round-trips to the
// two decimal places the encoding carries.
func Parse(s string) (Record, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("telemetry record %q: expected 3 fields, got %d", s, len(fields))
	}

	remaining, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("telemetry record remaining field %q: %w", fields[0], err)
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Record{}, fmt.Errorf("telemetry record value field %q: %w", fields[1], err)
	}
	uptime, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("telemetry record uptime field %q: %w", fields[2], err)
	}

	return Record{Remaining: remaining, Value: value, UptimeMS: uptime}, nil
}
