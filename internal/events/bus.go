// Package events provides a small publish/subscribe bus for
// operational observability. Components publish what they are doing
// (commands received, measurements started, samples published, faults)
// and subscribers (the admin WebSocket stream, tests) observe without
// coupling to the pipeline. The bus is nil-safe: Publish on a nil *Bus
// is a no-op, so wiring it is optional everywhere.
package events

import (
	"sync"
	"time"
)

// Source constants identify the component that published an event.
const (
	// SourceIngest identifies events from the MQTT ingest path.
	SourceIngest = "ingest"
	// SourceDispatch identifies events from the dispatcher loop.
	SourceDispatch = "dispatch"
	// SourceSampler identifies events from measure execution.
	SourceSampler = "sampler"
)

// Kind constants describe the event within a source.
const (
	// KindCommandReceived signals a command line was queued.
	// Data: topic, line_len.
	KindCommandReceived = "command_received"
	// KindCommandRejected signals an unparseable or unknown command.
	// Data: reason, detail.
	KindCommandRejected = "command_rejected"
	// KindMeasureStart signals a measure command began executing.
	// Data: amount, delay_ms.
	KindMeasureStart = "measure_start"
	// KindMeasureDone signals a measure command finished.
	// Data: emitted, ok.
	KindMeasureDone = "measure_done"
	// KindSamplePublished signals one telemetry record was sent.
	// Data: remaining, value, uptime_ms.
	KindSamplePublished = "sample_published"
	// KindSensorFault signals a hardware read failure that aborted
	// the in-flight command. Data: error.
	KindSensorFault = "sensor_fault"
	// KindPublishFault signals a telemetry send failure that aborted
	// the in-flight command. Data: error.
	KindPublishFault = "publish_fault"
)

// Event is one operational event.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus broadcasts events to subscribers without blocking publishers:
// a subscriber whose buffer is full misses events instead of stalling
// the pipeline.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

// New creates an event bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers e to every subscriber with buffer space. A zero
// Timestamp is filled with the current time. Safe on a nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Full subscriber, drop rather than block.
		}
	}
}

// Subscribe registers a new subscriber with the given channel buffer
// and returns its id plus the receive channel. Call Unsubscribe with
// the id when done.
func (b *Bus) Subscribe(buf int) (int, <-chan Event) {
	ch := make(chan Event, buf)
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel. Unknown
// ids are ignored.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
}
