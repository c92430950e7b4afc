package engine

import (
	"context"
	"testing"
	"time"

	"github.com/Wafl97/IoT-ESP32/internal/events"
	"github.com/Wafl97/IoT-ESP32/internal/queue"
)

func newTestDispatcher(t *testing.T, pub Publisher) (*Dispatcher, *queue.Unbounded[string]) {
	t.Helper()
	q := queue.New[string]()
	sm := newTestSampler(&fakeSensor{raw: 2100}, pub, t)
	return NewDispatcher(q, sm, nil, discard()), q
}

// runUntilClosed drives the dispatcher to completion: the queue is
// closed after the pushes, so Run drains everything and returns nil.
func runUntilClosed(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestDispatchMeasure(t *testing.T) {
	pub := &fakePublisher{}
	d, q := newTestDispatcher(t, pub)

	q.Push("measure:3,0")
	q.Close()
	runUntilClosed(t, d)

	recs := pub.published()
	if len(recs) != 3 {
		t.Fatalf("published %d records, want 3", len(recs))
	}
	for i, want := range []uint64{2, 1, 0} {
		if recs[i].Remaining != want {
			t.Errorf("record %d remaining = %d, want %d", i, recs[i].Remaining, want)
		}
	}
}

func TestDispatchSurvivesBadInput(t *testing.T) {
	pub := &fakePublisher{}
	d, q := newTestDispatcher(t, pub)

	// Every malformed line must be dropped without stopping the loop;
	// the valid command at the end still executes.
	q.Push("")
	q.Push("measure")
	q.Push("measure:5")
	q.Push("measure:abc,10")
	q.Push("measure:1,2,3")
	q.Push("foo:bar")
	q.Push("measure:2,0")
	q.Close()
	runUntilClosed(t, d)

	if got := len(pub.published()); got != 2 {
		t.Errorf("published %d records, want 2 (only the final valid command)", got)
	}
}

func TestDispatchUnknownVerbEmitsNothing(t *testing.T) {
	pub := &fakePublisher{}
	d, q := newTestDispatcher(t, pub)

	q.Push("reboot:now")
	q.Close()
	runUntilClosed(t, d)

	if got := len(pub.published()); got != 0 {
		t.Errorf("published %d records, want 0", got)
	}
}

func TestDispatchSerializesCommands(t *testing.T) {
	pub := &fakePublisher{}
	d, q := newTestDispatcher(t, pub)

	// The second command is queued while the first would still be
	// executing; all of the first command's records must precede all
	// of the second's.
	q.Push("measure:3,10")
	q.Push("measure:2,0")
	q.Close()
	runUntilClosed(t, d)

	recs := pub.published()
	want := []uint64{2, 1, 0, 1, 0}
	if len(recs) != len(want) {
		t.Fatalf("published %d records, want %d", len(recs), len(want))
	}
	for i := range want {
		if recs[i].Remaining != want[i] {
			t.Errorf("record %d remaining = %d, want %d", i, recs[i].Remaining, want[i])
		}
	}
}

func TestDispatchSensorFaultKeepsLoopAlive(t *testing.T) {
	pub := &fakePublisher{}
	q := queue.New[string]()
	// First read fails; subsequent reads succeed.
	sm := newTestSampler(&fakeSensor{raw: 2100, failFrom: 1}, pub, t)
	d := NewDispatcher(q, sm, nil, discard())

	q.Push("measure:3,0")
	q.Close()
	runUntilClosed(t, d)

	if got := len(pub.published()); got != 0 {
		t.Errorf("published %d records, want 0 (aborted command)", got)
	}
}

func TestDispatchPublishesBusEvents(t *testing.T) {
	bus := events.New()
	id, ch := bus.Subscribe(64)
	defer bus.Unsubscribe(id)

	pub := &fakePublisher{}
	q := queue.New[string]()
	sm := NewSampler(&fakeSensor{raw: 2100}, testConverter(t), pub, bus, discard())
	d := NewDispatcher(q, sm, bus, discard())

	q.Push("measure:1,0")
	q.Push("bogus:1")
	q.Close()
	runUntilClosed(t, d)

	kinds := map[string]int{}
	for {
		select {
		case e := <-ch:
			kinds[e.Kind]++
			continue
		default:
		}
		break
	}

	for _, want := range []string{
		events.KindMeasureStart,
		events.KindSamplePublished,
		events.KindMeasureDone,
		events.KindCommandRejected,
	} {
		if kinds[want] == 0 {
			t.Errorf("no %q event observed (got %v)", want, kinds)
		}
	}
}

func TestDispatchStopsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	d, _ := newTestDispatcher(t, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Run() = nil, want context error")
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on cancellation")
	}
}
