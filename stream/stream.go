// Package stream fans events out to subscribers over bounded buffers.
//
// Publishing never blocks: when a subscriber's buffer is full the oldest
// buffered event is discarded and the subscriber's dropped counter is
// incremented. Events delivered to one subscriber keep publication order.
package stream

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is used when Subscribe is called with a non-positive size.
const DefaultBufferSize = 256

// Broadcaster publishes values of type T to any number of subscribers.
// The zero value is not usable; construct with NewBroadcaster.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]*Subscription[T]
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[uint64]*Subscription[T])}
}

// Subscription is a single consumer of a Broadcaster.
type Subscription[T any] struct {
	id      uint64
	ch      chan T
	parent  *Broadcaster[T]
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the receive channel. It is closed when the subscription is
// cancelled or the broadcaster is closed.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Dropped reports how many events were discarded for this subscriber.
func (s *Subscription[T]) Dropped() uint64 { return s.dropped.Load() }

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once.
func (s *Subscription[T]) Cancel() {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()

	delete(s.parent.subs, s.id)
	s.close()
}

func (s *Subscription[T]) close() {
	s.once.Do(func() { close(s.ch) })
}

// Subscribe registers a new subscriber with the given buffer size. Subscribing
// to a closed broadcaster yields an already closed subscription.
func (b *Broadcaster[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription[T]{id: b.nextID, ch: make(chan T, buffer), parent: b}

	if b.closed {
		sub.close()
		return sub
	}

	b.subs[sub.id] = sub

	return sub
}

// Publish delivers v to every subscriber without blocking. Callers that need
// a total order across publishers must serialise their calls.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		b.deliver(sub, v)
	}
}

// deliver runs under b.mu, so this goroutine is the only sender on sub.ch.
func (b *Broadcaster[T]) deliver(sub *Subscription[T], v T) {
	for {
		select {
		case sub.ch <- v:
			return
		default:
		}

		// Full: evict the oldest value and try again. The consumer may have
		// drained the buffer in between, in which case nothing is evicted.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		default:
		}
	}
}

// Dropped reports the total number of discarded events across subscribers.
func (b *Broadcaster[T]) Dropped() uint64 { return b.dropped.Load() }

// Subscribers reports the number of active subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// Close closes every subscription. Further publishes are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.close()
	}
}
