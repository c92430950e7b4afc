package mqtt

import (
	"log/slog"
	"unicode/utf8"

	"github.com/eclipse/paho.golang/paho"

	"github.com/Wafl97/IoT-ESP32/internal/events"
	"github.com/Wafl97/IoT-ESP32/internal/queue"
)

// Ingestor is the inbound half of the protocol. It runs on the
// transport's delivery goroutine: each received publish is validated
// and its payload pushed onto the dispatcher queue as a command line.
// Validation failures are logged and dropped; nothing on this path is
// ever fatal, so a malformed message cannot take the node down.
type Ingestor struct {
	queue  *queue.Unbounded[string]
	bus    *events.Bus
	logger *slog.Logger
}

// NewIngestor creates an ingestor feeding q. bus may be nil.
func NewIngestor(q *queue.Unbounded[string], bus *events.Bus, logger *slog.Logger) *Ingestor {
	return &Ingestor{queue: q, bus: bus, logger: logger}
}

// HandlePublish is registered as the paho OnPublishReceived callback.
// It always reports the publish as handled: broker acknowledgement
// does not depend on whether the payload turned out to be usable.
func (in *Ingestor) HandlePublish(pr paho.PublishReceived) (bool, error) {
	pkt := pr.Packet

	if len(pkt.Payload) == 0 {
		in.logger.Debug("mqtt message with empty payload ignored",
			"topic", pkt.Topic)
		return true, nil
	}
	if !utf8.Valid(pkt.Payload) {
		in.logger.Warn("mqtt message dropped: payload is not valid UTF-8",
			"topic", pkt.Topic, "payload_size", len(pkt.Payload))
		return true, nil
	}

	line := string(pkt.Payload)
	in.logger.Info("mqtt command received",
		"topic", pkt.Topic, "payload", line)

	if !in.queue.Push(line) {
		in.logger.Warn("command queue closed, message dropped",
			"topic", pkt.Topic)
		return true, nil
	}

	in.bus.Publish(events.Event{
		Source: events.SourceIngest,
		Kind:   events.KindCommandReceived,
		Data:   map[string]any{"topic": pkt.Topic, "line_len": len(line)},
	})
	return true, nil
}
