// Package queue provides the unbounded FIFO connecting the MQTT
// ingest goroutine to the dispatcher.
//
// The contract is single-producer/single-consumer with strict arrival
// ordering: Push never blocks, Pop blocks until an item arrives, the
// queue is closed, or the caller's context is cancelled.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Pop once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Unbounded is an in-memory FIFO with no capacity limit.
type Unbounded[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	// ready carries at most one wake-up token for the consumer.
	ready chan struct{}
}

// New creates an empty queue.
func New[T any]() *Unbounded[T] {
	return &Unbounded[T]{ready: make(chan struct{}, 1)}
}

// Push appends v to the queue. It never blocks. Push reports false if
// the queue has been closed, in which case v is dropped.
func (q *Unbounded[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.wake()
	return true
}

// Pop removes and returns the oldest item. It blocks until an item is
// available, returning ctx.Err() on cancellation or [ErrClosed] once
// the queue is closed and empty. Items pushed before Close are still
// delivered.
func (q *Unbounded[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero // release the reference
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return v, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return zero, ErrClosed
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Close marks the end of the stream. Pending items remain poppable;
// subsequent Push calls are rejected. Safe to call more than once.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

// Len returns the number of queued items.
func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Unbounded[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
