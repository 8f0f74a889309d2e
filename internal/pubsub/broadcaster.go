// Package pubsub provides an in-process fan-out channel.
//
// A Broadcaster delivers every published value to every subscription that
// existed at publish time. There is no history: a new subscriber only sees
// values published after Subscribe returns. Publish never blocks; a
// subscriber whose buffer is full misses the value.
package pubsub

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscription channel capacity used when New is
// given a non-positive size.
const DefaultBuffer = 16

// Broadcaster fans values of type T out to any number of subscribers.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[*Subscription[T]]struct{}
	buffer int
	closed bool

	dropped atomic.Uint64
}

// New creates a Broadcaster whose subscriptions buffer up to buffer values.
func New[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		buffer: buffer,
	}
}

// Publish delivers v to every current subscriber without blocking.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscription. The returned subscription's
// channel is already closed if the broadcaster has been closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{
		ch: make(chan T, b.buffer),
		b:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		sub.done = true
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broadcaster[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later Publish calls are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
		sub.done = true
	}
}

func (b *Broadcaster[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.done {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	sub.done = true
}

// Subscription is one receiver of a Broadcaster.
type Subscription[T any] struct {
	ch chan T
	b  *Broadcaster[T]

	// done is guarded by b.mu.
	done bool
}

// C returns the receive channel. It is closed after Close or when the
// broadcaster is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.b.remove(s)
}
