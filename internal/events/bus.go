// Package events provides the broadcast channel the engine's actors
// communicate over, plus the domain event types carried on it.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned by Recv once the bus is closed and the
// subscriber's buffer is drained.
var ErrBusClosed = errors.New("events: bus closed")

// LaggedError reports that a slow subscriber missed messages. Delivery then
// resumes from the publisher's current position; receiving is never fatal.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("events: subscriber lagged, %d messages dropped", e.Missed)
}

// Bus is a multi-producer, multi-consumer broadcast channel. Each subscriber
// has its own buffer; a publisher never blocks on a slow subscriber, it drops
// the message for that subscriber and counts the drop. Every subscriber
// observes the messages it does receive in publication order.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]*Subscription[T])}
}

// Subscribe registers a subscriber with the given buffer size. A buffer of at
// least 1 is enforced so a burst of one message never counts as lag.
func (b *Bus[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{
		bus: b,
		id:  b.nextID,
		ch:  make(chan T, buffer),
	}
	b.nextID++
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers v to every subscriber whose buffer has room. Returns the
// number of subscribers the message was delivered to; publishing on a closed
// bus delivers to none.
func (b *Bus[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub.ch <- v:
			delivered++
		default:
			// Subscriber buffer full, drop for this subscriber only.
			sub.dropped.Add(1)
		}
	}
	return delivered
}

// Close shuts the bus down. Subscribers drain their buffers and then receive
// ErrBusClosed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is one subscriber's position on a bus. Not safe for use from
// multiple goroutines.
type Subscription[T any] struct {
	bus     *Bus[T]
	id      uint64
	ch      chan T
	dropped atomic.Uint64
}

// Recv returns the next message. When the subscriber has fallen behind it
// first returns a *LaggedError carrying the number of missed messages, then
// resumes delivery. Returns ErrBusClosed after the bus closes and the buffer
// drains, and ctx.Err() on context cancellation.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if missed := s.dropped.Swap(0); missed > 0 {
		return zero, &LaggedError{Missed: missed}
	}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-s.ch:
		if !ok {
			return zero, ErrBusClosed
		}
		return v, nil
	}
}

// C exposes the subscription's channel for use in select loops that watch
// more than one subscription. The channel closes when the bus closes.
// Consumers using C are responsible for polling TakeLagged themselves.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// TakeLagged returns the number of messages dropped since the last call and
// resets the counter.
func (s *Subscription[T]) TakeLagged() uint64 {
	return s.dropped.Swap(0)
}

// Unsubscribe detaches from the bus. Further Recv calls drain the buffer and
// then report ErrBusClosed.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(s.ch)
	}
}

// Dropped returns the number of messages dropped since the last lag report.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}
