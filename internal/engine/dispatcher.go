package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Wafl97/IoT-ESP32/internal/command"
	"github.com/Wafl97/IoT-ESP32/internal/events"
	"github.com/Wafl97/IoT-ESP32/internal/queue"
)

// Dispatcher is the command-processing loop. It pops one line at a
// time from the queue, parses it, and runs measure commands through
// the sampler. Bad input never stops the loop; only context
// cancellation or queue closure does.
type Dispatcher struct {
	queue   *queue.Unbounded[string]
	sampler *Sampler
	bus     *events.Bus
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher reading from q. bus may be nil.
func NewDispatcher(q *queue.Unbounded[string], sampler *Sampler, bus *events.Bus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		sampler: sampler,
		bus:     bus,
		logger:  logger,
	}
}

// Run processes commands until ctx is cancelled or the queue is
// closed. It returns nil on queue closure and ctx.Err() on
// cancellation. Commands run synchronously and in arrival order; a
// line queued while a measure is executing waits until that measure
// finishes.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started")

	for {
		line, err := d.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				d.logger.Info("command queue closed, dispatcher exiting")
				return nil
			}
			d.logger.Info("dispatcher stopping", "reason", err)
			return err
		}

		cmd, err := command.Parse(line)
		if err != nil {
			d.reject(line, err)
			continue
		}

		switch c := cmd.(type) {
		case command.Unknown:
			d.logger.Error("unknown command", "verb", c.Verb)
			d.bus.Publish(events.Event{
				Source: events.SourceDispatch,
				Kind:   events.KindCommandRejected,
				Data:   map[string]any{"reason": "unknown_command", "detail": c.Verb},
			})

		case command.Measure:
			d.logger.Info("measure command accepted",
				"amount", c.Amount, "delay_ms", c.DelayMS)
			d.bus.Publish(events.Event{
				Source: events.SourceDispatch,
				Kind:   events.KindMeasureStart,
				Data:   map[string]any{"amount": c.Amount, "delay_ms": c.DelayMS},
			})

			emitted, err := d.sampler.Run(ctx, c)
			if err != nil && ctx.Err() != nil {
				// Shutdown interrupted the measure; the next Pop
				// would return the same cancellation.
				return ctx.Err()
			}
			if err != nil {
				d.logger.Error("measure aborted",
					"emitted", emitted, "error", err)
			} else {
				d.logger.Info("measure complete", "emitted", emitted)
			}
			d.bus.Publish(events.Event{
				Source: events.SourceDispatch,
				Kind:   events.KindMeasureDone,
				Data:   map[string]any{"emitted": emitted, "ok": err == nil},
			})
		}
	}
}

// reject logs one unparseable command line with its specific error
// kind and publishes the rejection to the bus.
func (d *Dispatcher) reject(line string, err error) {
	var (
		ace *command.ArgCountError
		nan *command.NotANumberError
		pe  *command.ParseError
	)
	switch {
	case errors.As(err, &ace):
		d.logger.Error("wrong argument count on 'measure'",
			"expected", 2, "got", ace.Got, "line", line)
	case errors.As(err, &nan):
		d.logger.Error("bad 'measure' argument",
			"field", nan.Field, "value", nan.Raw, "line", line)
	case errors.As(err, &pe):
		d.logger.Error("invalid command string",
			"kind", pe.Kind, "line", line)
	default:
		d.logger.Error("unparseable command", "error", err, "line", line)
	}

	d.bus.Publish(events.Event{
		Source: events.SourceDispatch,
		Kind:   events.KindCommandRejected,
		Data:   map[string]any{"reason": "parse_error", "detail": err.Error()},
	})
}
