package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by First when the stream ended without a value.
var ErrClosed = errors.New("stream closed")

// Source is anything that can be subscribed to.
type Source[T any] interface {
	Subscribe() *Subscription[T]
}

// Producer feeds a Hub while it has subscribers. Values go out through emit;
// fail ends every current subscription with err. The producer must return
// once ctx is cancelled. Returning on its own ends the stream without error.
type Producer[T any] func(ctx context.Context, emit func(T), fail func(error))

// Option configures a Hub.
type Option[T any] func(*Hub[T])

// WithEqual suppresses a value when equal reports it matches the previous one.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(h *Hub[T]) {
		h.equal = equal
	}
}

// Hub is a lazily started, reference-counted broadcast with last-value replay.
type Hub[T any] struct {
	produce Producer[T]
	equal   func(a, b T) bool

	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	last   T
	has    bool
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub around produce. Nothing runs until the first Subscribe.
func NewHub[T any](produce Producer[T], opts ...Option[T]) *Hub[T] {
	h := &Hub[T]{
		produce: produce,
		subs:    make(map[*Subscription[T]]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a consumer. The first subscriber starts the producer;
// later ones immediately receive the cached value, if any.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{hub: h, c: make(chan T, 1)}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[s] = struct{}{}
	if h.cancel == nil {
		h.startLocked()
	} else if h.has {
		s.c <- h.last
	}
	return s
}

// Latest returns the cached value while the hub is running.
func (h *Hub[T]) Latest() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.has
}

// Subscribers returns the number of open subscriptions.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) startLocked() {
	h.gen++
	gen := h.gen

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done

	go func() {
		defer close(done)
		h.produce(ctx,
			func(v T) { h.publish(gen, v) },
			func(err error) { h.terminate(gen, err) },
		)
		if ctx.Err() == nil {
			h.terminate(gen, nil)
		}
	}()
}

// resetLocked stops the current run and forgets its state.
func (h *Hub[T]) resetLocked() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	var zero T
	h.last = zero
	h.has = false
}

func (h *Hub[T]) publish(gen uint64, v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel == nil || gen != h.gen {
		return
	}
	if h.has && h.equal != nil && h.equal(h.last, v) {
		return
	}
	h.last = v
	h.has = true

	for s := range h.subs {
		s.deliver(v)
	}
}

func (h *Hub[T]) terminate(gen uint64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel == nil || gen != h.gen {
		return
	}

	subs := h.subs
	h.subs = make(map[*Subscription[T]]struct{})
	h.resetLocked()

	for s := range subs {
		s.err = err
		s.closed = true
		close(s.c)
	}
}

// Subscription is one consumer's view of a Hub.
type Subscription[T any] struct {
	hub    *Hub[T]
	c      chan T
	err    error
	closed bool
}

// C delivers values. It is closed when the subscription ends, either through
// Close or because the producer failed; Err tells which.
func (s *Subscription[T]) C() <-chan T {
	return s.c
}

// Err returns the producer failure that ended the subscription, if any.
func (s *Subscription[T]) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

// Close unsubscribes. Closing the last subscription stops the producer and
// waits for it to return.
func (s *Subscription[T]) Close() {
	h := s.hub

	h.mu.Lock()
	if s.closed {
		h.mu.Unlock()
		return
	}
	s.closed = true
	delete(h.subs, s)
	close(s.c)

	var done chan struct{}
	if len(h.subs) == 0 && h.cancel != nil {
		h.resetLocked()
		done = h.done
	}
	h.mu.Unlock()

	if done != nil {
		<-done
	}
}

// deliver hands v to the consumer, replacing an unread value. Called with the
// hub lock held, which is the only place c is written or closed.
func (s *Subscription[T]) deliver(v T) {
	select {
	case s.c <- v:
		return
	default:
	}
	select {
	case <-s.c:
	default:
	}
	select {
	case s.c <- v:
	default:
	}
}
