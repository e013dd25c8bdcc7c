// Package broadcast implements the fan-out event stream that carries every
// server event to every connection writer. All subscribers observe events in
// the same order they were published. A subscriber that falls behind by more
// than its buffer is dropped rather than allowed to stall the publisher.
package broadcast

import (
	"sync"

	"github.com/parlor/chat-app/internal/protocol"
)

// DefaultBuffer is the per-subscriber event buffer size.
const DefaultBuffer = 8

// Stream is a multi-subscriber broadcast channel for server events. The zero
// value is not usable; construct with New.
type Stream struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	onDrop func() // invoked (under lock) each time a lagging subscriber is dropped
}

// Subscription is one subscriber's view of the stream. Events are received
// from Events; the channel is closed when the subscriber lags beyond its
// buffer, cancels, or the stream shuts down.
type Subscription struct {
	stream *Stream
	ch     chan protocol.ServerEvent
}

// New creates a Stream whose subscribers each buffer up to buffer events.
// A non-positive buffer falls back to DefaultBuffer.
func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// OnDrop registers a callback invoked whenever a lagging subscriber is
// dropped. Intended for metrics; must not block. Call before Publish is in
// use.
func (s *Stream) OnDrop(fn func()) {
	s.mu.Lock()
	s.onDrop = fn
	s.mu.Unlock()
}

// Subscribe registers a new subscriber. Subscribing to a closed stream
// returns a subscription whose channel is already closed.
func (s *Stream) Subscribe() *Subscription {
	sub := &Subscription{
		stream: s,
		ch:     make(chan protocol.ServerEvent, s.buffer),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(sub.ch)
		return sub
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Publish delivers ev to every live subscriber. Subscribers whose buffers are
// full are dropped (their channel is closed) so that publishing never blocks.
func (s *Stream) Publish(ev protocol.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			// Lagging subscriber: disconnect it rather than stall.
			delete(s.subs, sub)
			close(sub.ch)
			if s.onDrop != nil {
				s.onDrop()
			}
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()
	return n
}

// Close shuts the stream down, closing every subscriber channel. Publish and
// Subscribe become no-ops afterwards.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

// Events returns the channel on which this subscription receives events. The
// channel closes when the subscriber is dropped for lagging, cancels, or the
// stream is closed.
func (sub *Subscription) Events() <-chan protocol.ServerEvent {
	return sub.ch
}

// Cancel removes the subscription from the stream and closes its channel.
// Safe to call after the subscriber has already been dropped.
func (sub *Subscription) Cancel() {
	s := sub.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	close(sub.ch)
}
