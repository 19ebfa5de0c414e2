package fanout

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put on a closed queue and by Get once a closed queue is drained
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO handing values from one stage to another.
// A capacity of 0 makes it unbounded: Put never blocks and memory grows
// with a slow consumer. A positive capacity makes Put block until there is room.
type Queue[T any] struct {
	name     string
	capacity int

	mu     sync.Mutex
	items  []T
	closed bool

	ready chan struct{}
	space chan struct{}
	done  chan struct{}
}

// NewQueue creates a new queue
func NewQueue[T any](name string, capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		name:     name,
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Name returns the consumer name the queue was registered with
func (q *Queue[T]) Name() string {
	return q.name
}

// Capacity returns the configured capacity, 0 meaning unbounded
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Len returns the number of queued values
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Put appends a value. On a bounded queue it waits for room or ctx.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, v)
			hasRoom := q.capacity > 0 && len(q.items) < q.capacity
			q.mu.Unlock()
			signal(q.ready)
			if hasRoom {
				signal(q.space)
			}
			return nil
		}
		q.mu.Unlock()

		select {
		case <-q.space:
		case <-q.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Get removes and returns the oldest value, blocking until one is available
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if n := len(q.items); n > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if n == 1 {
				q.items = nil
			}
			more := n > 1
			q.mu.Unlock()
			if more {
				signal(q.ready)
			}
			if q.capacity > 0 {
				signal(q.space)
			}
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close stops the queue accepting values; queued values can still be drained
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
