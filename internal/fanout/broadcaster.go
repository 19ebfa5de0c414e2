// Package fanout connects pipeline stages: one producer broadcasting every
// value to queues owned by independent consumers.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSealed is returned when a consumer registers after the producer started
var ErrSealed = errors.New("fan-out already sealed")

// Option configures a Broadcaster
type Option[T any] func(*Broadcaster[T])

// WithCopy makes the broadcaster hand every consumer its own copy of a value
func WithCopy[T any](copyFn func(T) T) Option[T] {
	return func(b *Broadcaster[T]) {
		b.copyFn = copyFn
	}
}

// Broadcaster pushes each published value to every registered queue.
// Registration happens before the producer starts; Publish seals it.
type Broadcaster[T any] struct {
	name     string
	capacity int
	copyFn   func(T) T

	mu     sync.Mutex
	queues []*Queue[T]
	sealed bool
}

// NewBroadcaster creates a new fan-out. capacity applies to each consumer queue.
func NewBroadcaster[T any](name string, capacity int, opts ...Option[T]) *Broadcaster[T] {
	b := &Broadcaster[T]{
		name:     name,
		capacity: capacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the producer name
func (b *Broadcaster[T]) Name() string {
	return b.name
}

// Register creates and returns a queue for a new consumer
func (b *Broadcaster[T]) Register(consumer string) (*Queue[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil, fmt.Errorf("register %s on %s: %w", consumer, b.name, ErrSealed)
	}

	q := NewQueue[T](consumer, b.capacity)
	b.queues = append(b.queues, q)
	return q, nil
}

// Seal ends the registration phase
func (b *Broadcaster[T]) Seal() {
	b.mu.Lock()
	b.sealed = true
	b.mu.Unlock()
}

// Len returns the number of registered consumers
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

// Consumers returns the names of the registered consumers in registration order
func (b *Broadcaster[T]) Consumers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, len(b.queues))
	for i, q := range b.queues {
		names[i] = q.Name()
	}
	return names
}

// Publish delivers v to every consumer queue
func (b *Broadcaster[T]) Publish(ctx context.Context, v T) error {
	b.mu.Lock()
	b.sealed = true
	queues := b.queues
	b.mu.Unlock()

	for _, q := range queues {
		item := v
		if b.copyFn != nil {
			item = b.copyFn(v)
		}
		if err := q.Put(ctx, item); err != nil {
			return fmt.Errorf("publish to %s: %w", q.Name(), err)
		}
	}
	return nil
}

// Close closes every consumer queue so consumers drain and stop
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	b.sealed = true
	queues := b.queues
	b.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
}
