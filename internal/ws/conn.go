package ws

import (
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/parlor/chat-app/internal/broadcast"
	"github.com/parlor/chat-app/internal/metrics"
	"github.com/parlor/chat-app/internal/protocol"
	"github.com/parlor/chat-app/internal/ratelimit"
	"github.com/parlor/chat-app/internal/state"
)

// submitTimeout bounds how long a connection will block on the state actor's
// inbound queue before giving up on the connection.
const submitTimeout = 5 * time.Second

// Conn is one WebSocket connection: an independent reader and writer sharing
// a socket. The reader decodes client events and forwards them to the state
// actor tagged with the bound name; the writer drains a broadcast
// subscription onto the socket. The connection is closed once either side
// terminates, and the Leave request is emitted exactly once by whichever
// side tears down first.
type Conn struct {
	id     string
	sock   net.Conn
	server *Server
	sub    *broadcast.Subscription

	heartbeatNano atomic.Int64 // unix nanos of the last heartbeat frame

	mu   sync.Mutex
	name string // bound by the init event, empty until then

	closeOnce sync.Once
	leftOnce  sync.Once
}

// newConn builds a connection with its broadcast subscription already open,
// so no event published between the upgrade and the writer starting is lost.
func newConn(id string, sock net.Conn, server *Server) *Conn {
	c := &Conn{
		id:     id,
		sock:   sock,
		server: server,
		sub:    server.stream.Subscribe(),
	}
	c.heartbeatNano.Store(time.Now().UnixNano())
	return c
}

func (c *Conn) touchHeartbeat() {
	c.heartbeatNano.Store(time.Now().UnixNano())
}

func (c *Conn) lastHeartbeat() time.Time {
	return time.Unix(0, c.heartbeatNano.Load())
}

func (c *Conn) stale() bool {
	return time.Since(c.lastHeartbeat()) > c.server.config.HeartbeatMax
}

func (c *Conn) bindName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *Conn) boundName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// closeSocket closes the underlying socket, unblocking both loops. Safe to
// call from any goroutine, any number of times.
func (c *Conn) closeSocket() {
	c.closeOnce.Do(func() {
		_ = c.sock.Close()
	})
}

// teardown closes the socket, unregisters the connection, and, if a name was
// ever bound, emits the Leave request exactly once.
func (c *Conn) teardown() {
	c.closeSocket()
	c.sub.Cancel()
	c.server.removeConn(c)

	if name := c.boundName(); name != "" {
		c.leftOnce.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
			defer cancel()
			if err := c.server.actor.Submit(ctx, state.Leave{Name: name}); err != nil {
				log.Printf("ws: failed to submit leave for %q: %v", name, err)
			}
		})
	}
}

// readLoop runs the connection's read state machine: await the init event,
// then decode and forward events until the socket fails, the protocol is
// violated, or the heartbeat goes stale.
func (c *Conn) readLoop() {
	defer c.teardown()

	name, ok := c.awaitInit()
	if !ok {
		return
	}
	c.bindName(name)

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	err := c.server.actor.Submit(ctx, state.Join{Name: name})
	cancel()
	if err != nil {
		log.Printf("ws: failed to submit join for %q: %v", name, err)
		return
	}

	for {
		data, op, err := wsutil.ReadClientData(c.sock)
		if err != nil {
			return
		}
		if op == ws.OpText && protocol.IsHeartbeat(data) {
			c.touchHeartbeat()
			continue
		}

		// Opportunistic liveness check: staleness is inspected when an
		// application frame arrives, not on an independent timer. The
		// sweeper covers connections that stop sending entirely.
		if c.stale() {
			log.Printf("ws: client %q timed out", name)
			return
		}

		ev, err := protocol.DecodeClientEvent(data)
		if err != nil {
			log.Printf("ws: decode error id=%s: %v", c.id, err)
			return
		}

		switch ev := ev.(type) {
		case *protocol.InitEvent:
			log.Printf("ws: client %q sent two init events", name)
			return

		case *protocol.TypingPulseEvent:
			if !c.submit(state.TypingPulse{Name: name}) {
				return
			}

		case *protocol.SendEvent:
			msg := ev.Message
			if err := protocol.ValidateMessageBody(msg.Body); err != nil {
				log.Printf("ws: rejected message from %q: %v", name, err)
				metrics.MessagesTotal.WithLabelValues("rejected").Inc()
				continue
			}
			if c.server.limiter != nil {
				ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
				allowed := c.server.limiter.Allow(ctx, c.id, ratelimit.RuleMessage)
				cancel()
				if !allowed {
					log.Printf("ws: rate limited message from %q", name)
					metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
					continue
				}
			}
			// The sender is the bound name, regardless of what the client
			// put in the message.
			msg.Sender = name
			if !c.submit(state.NewMessage{Message: msg, FromUser: true}) {
				return
			}

		case *protocol.ReadUpToEvent:
			if !c.submit(state.ReadUpTo{Reader: name, Earliest: ev.Earliest}) {
				return
			}

		case *protocol.VisibilityEvent:
			if !c.submit(state.Visibility{Name: name, Visible: ev.Visible}) {
				return
			}
		}
	}
}

// awaitInit reads frames until the init event arrives. Heartbeats update the
// liveness timer but are otherwise ignored; any other event or a decode
// failure closes the connection.
func (c *Conn) awaitInit() (string, bool) {
	for {
		data, op, err := wsutil.ReadClientData(c.sock)
		if err != nil {
			return "", false
		}
		if op == ws.OpText && protocol.IsHeartbeat(data) {
			c.touchHeartbeat()
			continue
		}

		ev, err := protocol.DecodeClientEvent(data)
		if err != nil {
			log.Printf("ws: decode error before init id=%s: %v", c.id, err)
			return "", false
		}
		init, ok := ev.(*protocol.InitEvent)
		if !ok {
			log.Printf("ws: first event from id=%s was %q, not init", c.id, ev.EventKind())
			return "", false
		}
		if init.Name == "" {
			log.Printf("ws: empty name in init from id=%s", c.id)
			return "", false
		}
		return init.Name, true
	}
}

// writeLoop drains the connection's broadcast subscription onto the socket
// until the send fails or the subscription closes (stream shutdown, teardown,
// or this writer was dropped for lagging).
func (c *Conn) writeLoop() {
	defer c.teardown()

	for ev := range c.sub.Events() {
		data, err := protocol.EncodeServerEvent(ev)
		if err != nil {
			log.Printf("ws: encode %q event: %v", ev.EventKind(), err)
			continue
		}

		if c.server.config.WriteTimeout > 0 {
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
		}
		if err := wsutil.WriteServerBinary(c.sock, data); err != nil {
			return
		}
	}
	log.Printf("ws: writer for id=%s stopped (stream closed or lagging)", c.id)
}

// submit forwards a request to the state actor, reporting false if the actor
// is unreachable within the submit timeout.
func (c *Conn) submit(req state.Request) bool {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	if err := c.server.actor.Submit(ctx, req); err != nil {
		log.Printf("ws: failed to submit %T for id=%s: %v", req, c.id, err)
		return false
	}
	return true
}
