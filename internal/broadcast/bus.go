package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/muurk/fieldsync/internal/protocol"
)

// DefaultQueueSize is the per-subscriber queue capacity used when none is given.
const DefaultQueueSize = 1000

// ErrUnsubscribed is returned by Next once the subscription has been removed.
var ErrUnsubscribed = errors.New("subscription closed")

// Stats is a point-in-time view of bus activity.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// Bus fans every published message out to all current subscribers.
//
// Publish never waits for a subscriber. Each subscriber owns a bounded queue;
// when it is full the oldest unread message is discarded to make room.
// Publishes are serialised, so every subscriber sees the same relative order.
type Bus struct {
	queueSize int

	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	published uint64
	dropped   uint64
}

// New creates a bus whose subscribers buffer up to queueSize messages.
// A queueSize of zero or less means DefaultQueueSize.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		queueSize: queueSize,
		subs:      make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber. It receives every message published
// after Subscribe returns and nothing published before.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus:    b,
		buf:    make([]protocol.ServerMessage, b.queueSize),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. It is idempotent and wakes a blocked Next.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()

	sub.close()
}

// Publish enqueues msg for every current subscriber.
func (b *Bus) Publish(msg protocol.ServerMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published++
	for sub := range b.subs {
		if sub.push(msg) {
			b.dropped++
		}
	}
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Subscribers: len(b.subs),
		Published:   b.published,
		Dropped:     b.dropped,
	}
}

// Subscription is one subscriber's FIFO view of the bus. Next must be called
// from a single goroutine.
type Subscription struct {
	bus    *Bus
	notify chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	buf     []protocol.ServerMessage
	head    int
	n       int
	dropped uint64
	closed  bool
}

// push appends msg, evicting the oldest entry if the ring is full. It
// reports whether a message was dropped.
func (s *Subscription) push(msg protocol.ServerMessage) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}

	evicted := false
	if s.n == len(s.buf) {
		s.buf[s.head] = nil
		s.head = (s.head + 1) % len(s.buf)
		s.n--
		s.dropped++
		evicted = true
	}
	s.buf[(s.head+s.n)%len(s.buf)] = msg
	s.n++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return evicted
}

func (s *Subscription) pop() (protocol.ServerMessage, bool) {
	if s.n == 0 {
		return nil, false
	}
	msg := s.buf[s.head]
	s.buf[s.head] = nil
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return msg, true
}

// Next returns the oldest queued message, blocking until one is available,
// ctx is done, or the subscription is removed.
func (s *Subscription) Next(ctx context.Context) (protocol.ServerMessage, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrUnsubscribed
		}
		if msg, ok := s.pop(); ok {
			s.mu.Unlock()
			return msg, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Discard drops every queued message.
func (s *Subscription) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.n > 0 {
		s.pop()
	}
}

// Len returns the number of queued messages.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Dropped returns how many messages this subscriber lost to overflow.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.head, s.n = 0, 0
	clear(s.buf)
	close(s.done)
}
