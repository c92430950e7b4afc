package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestFIFOOrdering(t *testing.T) {
	q := New[int]()
	for i := range 100 {
		if !q.Push(i) {
			t.Fatalf("Push(%d) = false, want true", i)
		}
	}

	ctx := context.Background()
	for want := range 100 {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if got != want {
			t.Fatalf("Pop() = %d, want %d", got, want)
		}
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[string]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push("hello")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("Pop() = %q, want %q", got, "hello")
	}
}

func TestPopCancelled(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Pop() error = %v, want context.Canceled", err)
	}
}

func TestCloseDrainsPendingItems(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Close()

	if q.Push(3) {
		t.Error("Push() after Close = true, want false")
	}

	ctx := context.Background()
	for want := 1; want <= 2; want++ {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if got != want {
			t.Errorf("Pop() = %d, want %d", got, want)
		}
	}
	if _, err := q.Pop(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Pop() on drained closed queue error = %v, want ErrClosed", err)
	}
}

func TestProducerConsumerOrdering(t *testing.T) {
	q := New[string]()
	const n = 1000

	go func() {
		for i := range n {
			q.Push(fmt.Sprintf("msg-%d", i))
		}
		q.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got int
	for {
		v, err := q.Pop(ctx)
		if errors.Is(err, ErrClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if want := fmt.Sprintf("msg-%d", got); v != want {
			t.Fatalf("Pop() = %q, want %q", v, want)
		}
		got++
	}
	if got != n {
		t.Errorf("consumed %d items, want %d", got, n)
	}
}
