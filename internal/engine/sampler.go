// Package engine executes parsed commands: the dispatcher loop pulls
// command lines from the queue and the sampler runs measure commands
// against the sensor.
//
// Concurrency model: exactly one dispatcher goroutine owns the sensor
// handle and runs commands synchronously, so at most one measure is in
// flight and commands execute in arrival order. The MQTT ingest
// goroutine only ever touches the queue.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Wafl97/IoT-ESP32/internal/buildinfo"
	"github.com/Wafl97/IoT-ESP32/internal/command"
	"github.com/Wafl97/IoT-ESP32/internal/events"
	"github.com/Wafl97/IoT-ESP32/internal/sensor"
	"github.com/Wafl97/IoT-ESP32/internal/telemetry"
)

// Publisher sends one telemetry record to the outbound topic. The MQTT
// client implements it; tests substitute fakes.
type Publisher interface {
	Publish(ctx context.Context, rec telemetry.Record) error
}

// Sampler runs measure commands: delay, read, convert, publish, once
// per requested sample.
type Sampler struct {
	sensor sensor.Sensor
	conv   *sensor.Converter
	pub    Publisher
	bus    *events.Bus
	logger *slog.Logger

	// uptime is injectable for tests; defaults to buildinfo.
	uptime func() uint64
}

// NewSampler creates a sampler. bus may be nil.
func NewSampler(s sensor.Sensor, conv *sensor.Converter, pub Publisher, bus *events.Bus, logger *slog.Logger) *Sampler {
	return &Sampler{
		sensor: s,
		conv:   conv,
		pub:    pub,
		bus:    bus,
		logger: logger,
		uptime: buildinfo.UptimeMillis,
	}
}

// Run executes one measure command. For each of cmd.Amount samples it
// waits cmd.DelayMS milliseconds, reads the sensor, converts the raw
// value, and publishes a record whose Remaining field counts down to
// zero. Amount zero returns immediately with no records and no error.
//
// A sensor or publish failure aborts the remaining samples of this
// command only: Run returns the error, the dispatcher logs it, and the
// device keeps accepting commands. Cancellation of ctx is honored at
// every delay, so a long-running measure does not outlive shutdown.
// Run reports how many records were emitted.
func (s *Sampler) Run(ctx context.Context, cmd command.Measure) (uint64, error) {
	delay := time.Duration(cmd.DelayMS) * time.Millisecond

	var emitted uint64
	for i := cmd.Amount; i > 0; i-- {
		remaining := i - 1

		if err := wait(ctx, delay); err != nil {
			return emitted, err
		}

		raw, err := s.sensor.Read(ctx)
		if err != nil {
			s.logger.Error("sensor read failed, aborting measure",
				"remaining", remaining, "error", err)
			s.bus.Publish(events.Event{
				Source: events.SourceSampler,
				Kind:   events.KindSensorFault,
				Data:   map[string]any{"error": err.Error()},
			})
			return emitted, fmt.Errorf("sensor read: %w", err)
		}

		rec := telemetry.Record{
			Remaining: remaining,
			Value:     s.conv.Convert(raw),
			UptimeMS:  s.uptime(),
		}

		if err := s.pub.Publish(ctx, rec); err != nil {
			s.logger.Error("telemetry publish failed, aborting measure",
				"remaining", remaining, "error", err)
			s.bus.Publish(events.Event{
				Source: events.SourceSampler,
				Kind:   events.KindPublishFault,
				Data:   map[string]any{"error": err.Error()},
			})
			return emitted, fmt.Errorf("publish telemetry: %w", err)
		}
		emitted++

		s.bus.Publish(events.Event{
			Source: events.SourceSampler,
			Kind:   events.KindSamplePublished,
			Data: map[string]any{
				"remaining": rec.Remaining,
				"value":     rec.Value,
				"uptime_ms": rec.UptimeMS,
			},
		})
	}

	return emitted, nil
}

// wait sleeps for d or until ctx is cancelled. A zero d still yields
// to cancellation before returning.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
