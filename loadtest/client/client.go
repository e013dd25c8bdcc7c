// Package client provides a reusable WebSocket load test client for the
// parlor chat server. It connects using gobwas/ws (the same library the
// server uses), speaks the msgpack event envelope, keeps the connection alive
// with heartbeat frames, and tracks per-connection performance metrics.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vmihailenco/msgpack/v5"
)

// HeartbeatFrame is the literal text frame the server treats as a liveness
// signal. Kept in sync with the server's protocol package.
const HeartbeatFrame = "<Heartbeat>"

// Client -> Server event kinds.
const (
	KindInit        = "init"
	KindSend        = "send"
	KindTypingPulse = "typing_pulse"
	KindReadUpTo    = "read_up_to"
	KindVisibility  = "visibility"
)

// Server -> Client event kinds.
const (
	KindMessageAdded      = "message_added"
	KindUserTyping        = "user_typing"
	KindUserStoppedTyping = "user_stopped_typing"
	KindPresenceSnapshot  = "presence_snapshot"
	KindReadReceipt       = "read_receipt"
	KindUserObserving     = "user_observing"
	KindUserNotObserving  = "user_not_observing"
)

// ChatMessage mirrors the server's wire type for chat messages.
type ChatMessage struct {
	ID       uint32    `msgpack:"id"`
	SendTime time.Time `msgpack:"send_time"`
	Sender   string    `msgpack:"sender"`
	Body     string    `msgpack:"body"`
	ReplyTo  *uint32   `msgpack:"reply_to"`
}

type envelope struct {
	Kind string             `msgpack:"kind"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// Client represents a single simulated user connection. It manages the
// WebSocket lifecycle, sends heartbeats in the background, and dispatches
// incoming events to registered handlers.
type Client struct {
	conn      net.Conn
	name      string
	mu        sync.Mutex
	metrics   Metrics
	handlers  map[string]func(msgpack.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
}

// New dials the server and starts the background read and heartbeat loops.
// heartbeatEvery controls how often the liveness frame is sent; the server
// evicts connections silent for longer than its configured maximum.
func New(ctx context.Context, url string, heartbeatEvery time.Duration) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]func(msgpack.RawMessage)),
		done:     make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	go c.readLoop()
	go c.heartbeatLoop(heartbeatEvery)

	return c, nil
}

// Init binds the user name on the connection. The server ignores every other
// event until the init arrives.
func (c *Client) Init(name string) error {
	c.name = name
	return c.sendEvent(KindInit, struct {
		Name string `msgpack:"name"`
	}{Name: name})
}

// Name returns the name bound by Init.
func (c *Client) Name() string { return c.name }

// SendMessage sends one chat message stamped with the current time, so
// broadcast latency can be computed from the echoed message_added event.
func (c *Client) SendMessage(body string) error {
	return c.sendEvent(KindSend, struct {
		Message ChatMessage `msgpack:"message"`
	}{Message: ChatMessage{SendTime: time.Now(), Sender: c.name, Body: body}})
}

// SendTypingPulse reports typing activity.
func (c *Client) SendTypingPulse() error {
	return c.sendEvent(KindTypingPulse, struct{}{})
}

// On registers a handler for a server event kind. The handler receives the
// raw msgpack payload and is invoked from the read loop goroutine, so it
// should not block.
func (c *Client) On(kind string, handler func(msgpack.RawMessage)) {
	c.mu.Lock()
	c.handlers[kind] = handler
	c.mu.Unlock()
}

// Metrics returns a copy of the client's metrics.
func (c *Client) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Done returns a channel closed when the connection terminates.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func (c *Client) sendEvent(kind string, payload interface{}) error {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	frame, err := msgpack.Marshal(envelope{Kind: kind, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", kind, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MessagesSent++
	return wsutil.WriteClientBinary(c.conn, frame)
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.Close()

	for {
		data, err := wsutil.ReadServerBinary(c.conn)
		if err != nil {
			return
		}

		var env envelope
		if err := msgpack.Unmarshal(data, &env); err != nil {
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			continue
		}

		c.mu.Lock()
		c.metrics.MessagesReceived++
		handler := c.handlers[env.Kind]
		c.mu.Unlock()

		if handler != nil {
			handler(env.Data)
		}
	}
}

func (c *Client) heartbeatLoop(every time.Duration) {
	if every <= 0 {
		every = 2 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := wsutil.WriteClientText(c.conn, []byte(HeartbeatFrame))
			c.mu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}
