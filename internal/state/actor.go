// Package state implements the single-writer state actor that owns all shared
// chat-room state: presence reference counts, the typing set with its
// generation-stamped debounce, the monotonic message-ID counter, and the
// observer set. Requests funnel through one bounded queue and are handled
// sequentially, so the broadcast stream is a strict total order consistent
// with arrival order and no lock protects the maps.
package state

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/parlor/chat-app/internal/broadcast"
	"github.com/parlor/chat-app/internal/metrics"
	"github.com/parlor/chat-app/internal/protocol"
)

const (
	// DefaultQueueSize bounds the inbound request queue. Small on purpose:
	// producers block under sustained overload instead of growing memory.
	DefaultQueueSize = 8

	// DefaultTypingWindow is the trailing debounce after the last typing
	// pulse before a stop indicator is broadcast.
	DefaultTypingWindow = 1500 * time.Millisecond
)

// Config holds actor tuning parameters.
type Config struct {
	QueueSize    int
	TypingWindow time.Duration
}

// DefaultConfig returns the standard actor configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:    DefaultQueueSize,
		TypingWindow: DefaultTypingWindow,
	}
}

// Renderer turns a raw message body into sanitized HTML.
type Renderer interface {
	Render(body string) string
}

// Reactor receives the original, pre-assignment message of every user-sent
// NewMessage on a detached goroutine. It is the hook for command dispatch.
type Reactor func(msg protocol.ChatMessage)

// Actor is the single logical owner of all shared mutable chat state.
type Actor struct {
	cfg      Config
	requests chan Request
	stream   *broadcast.Stream
	renderer Renderer
	reactor  Reactor

	// Owned exclusively by the Run loop.
	presence  map[string]int    // name -> open connection count
	typing    map[string]struct{}
	typingGen map[string]uint64 // per-name pulse generation, never reset
	observing map[string]struct{}
	nextID    uint32

	stopOnce sync.Once
	stopped  chan struct{} // closed when Run returns
}

// New creates an Actor publishing on stream. The reactor may be nil; set one
// with SetReactor before Run if command dispatch is wanted.
func New(cfg Config, stream *broadcast.Stream, renderer Renderer, reactor Reactor) *Actor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.TypingWindow <= 0 {
		cfg.TypingWindow = DefaultTypingWindow
	}
	return &Actor{
		cfg:       cfg,
		requests:  make(chan Request, cfg.QueueSize),
		stream:    stream,
		renderer:  renderer,
		reactor:   reactor,
		presence:  make(map[string]int),
		typing:    make(map[string]struct{}),
		typingGen: make(map[string]uint64),
		observing: make(map[string]struct{}),
		stopped:   make(chan struct{}),
	}
}

// SetReactor installs the command reactor. Must be called before Run.
func (a *Actor) SetReactor(r Reactor) {
	a.reactor = r
}

// Submit enqueues a request, blocking while the queue is full. It returns the
// context's error if ctx expires first or the actor has stopped.
func (a *Actor) Submit(ctx context.Context, req Request) error {
	select {
	case a.requests <- req:
		return nil
	case <-a.stopped:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes requests sequentially until ctx is cancelled. It must be
// called exactly once.
func (a *Actor) Run(ctx context.Context) {
	defer a.stopOnce.Do(func() { close(a.stopped) })
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-a.requests:
			a.handle(req)
		}
	}
}

func (a *Actor) handle(req Request) {
	switch req := req.(type) {
	case Join:
		a.presence[req.Name]++
		a.publishPresence()
		metrics.OnlineUsers.Set(float64(len(a.presence)))

	case Leave:
		if n, ok := a.presence[req.Name]; ok {
			n--
			if n <= 0 {
				delete(a.presence, req.Name)
				// A fully departed user can no longer be observing.
				if _, observing := a.observing[req.Name]; observing {
					delete(a.observing, req.Name)
					a.stream.Publish(&protocol.UserNotObserving{Name: req.Name})
				}
			} else {
				a.presence[req.Name] = n
			}
		}
		a.publishPresence()
		metrics.OnlineUsers.Set(float64(len(a.presence)))

	case TypingPulse:
		if _, ok := a.typing[req.Name]; !ok {
			a.typing[req.Name] = struct{}{}
			a.stream.Publish(&protocol.UserTyping{Name: req.Name})
		}
		gen := a.typingGen[req.Name] + 1
		a.typingGen[req.Name] = gen
		// Deferred check: only the timer whose generation is still current
		// acts, so a later pulse supersedes this one without a cancel handle.
		name := req.Name
		time.AfterFunc(a.cfg.TypingWindow, func() {
			a.submitInternal(typingExpired{Name: name, Gen: gen})
		})

	case typingExpired:
		if gen, ok := a.typingGen[req.Name]; ok && gen == req.Gen {
			if _, typingNow := a.typing[req.Name]; typingNow {
				delete(a.typing, req.Name)
				a.stream.Publish(&protocol.UserStoppedTyping{Name: req.Name})
			}
		}

	case NewMessage:
		original := req.Message
		msg := req.Message
		msg.ID = a.nextID
		a.nextID++
		start := time.Now()
		msg.Body = a.renderer.Render(msg.Body)
		metrics.RenderDuration.Observe(time.Since(start).Seconds())
		a.stream.Publish(&protocol.MessageAdded{Message: msg})
		metrics.MessagesTotal.WithLabelValues("added").Inc()
		if req.FromUser && a.reactor != nil {
			go a.reactor(original)
		}

	case ReadUpTo:
		a.stream.Publish(&protocol.ReadReceipt{Reader: req.Reader, Earliest: req.Earliest})

	case Visibility:
		if req.Visible {
			if _, ok := a.observing[req.Name]; !ok {
				a.observing[req.Name] = struct{}{}
				a.stream.Publish(&protocol.UserObserving{Name: req.Name})
			}
		} else {
			if _, ok := a.observing[req.Name]; ok {
				delete(a.observing, req.Name)
				a.stream.Publish(&protocol.UserNotObserving{Name: req.Name})
			}
		}
	}
}

// publishPresence broadcasts the sorted set of names with at least one open
// connection.
func (a *Actor) publishPresence() {
	names := make([]string, 0, len(a.presence))
	for name := range a.presence {
		names = append(names, name)
	}
	sort.Strings(names)
	a.stream.Publish(&protocol.PresenceSnapshot{Names: names})
}

// submitInternal enqueues an actor-originated request from a timer goroutine.
// Blocks under backpressure like any other producer; gives up if the actor
// has stopped.
func (a *Actor) submitInternal(req Request) {
	select {
	case a.requests <- req:
	case <-a.stopped:
		log.Printf("state: dropped internal request after actor stop")
	}
}
