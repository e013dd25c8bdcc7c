// Package messaging provides an optional NATS mirror of the broadcast
// stream: every server event is also published, wire-encoded, on a NATS
// subject so external consumers (dashboards, archivers, moderation tooling)
// can observe the room without holding a WebSocket connection.
package messaging

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/parlor/chat-app/internal/broadcast"
	"github.com/parlor/chat-app/internal/protocol"
)

// DefaultSubject is the NATS subject events are mirrored to.
const DefaultSubject = "chat.events"

// MirrorConfig holds NATS connection settings for the event mirror.
type MirrorConfig struct {
	URL           string // nats://localhost:4222
	Subject       string
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultMirrorConfig returns sensible defaults.
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		URL:           "nats://localhost:4222",
		Subject:       DefaultSubject,
		Name:          "parlor-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Mirror republishes broadcast events onto NATS. It is an ordinary broadcast
// subscriber: if it lags it is dropped like any other, and the state actor is
// never blocked by NATS.
type Mirror struct {
	conn    *nats.Conn
	subject string
}

// NewMirror connects to NATS with the given config and returns a ready
// Mirror. It returns an error if the initial connection fails.
func NewMirror(config MirrorConfig) (*Mirror, error) {
	if config.Subject == "" {
		config.Subject = DefaultSubject
	}

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("messaging: nats disconnected: %v", err)
			} else {
				log.Printf("messaging: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("messaging: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("messaging: nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect: %w", err)
	}

	log.Printf("messaging: nats connected to %s, mirroring to subject %q",
		nc.ConnectedUrl(), config.Subject)

	return &Mirror{conn: nc, subject: config.Subject}, nil
}

// Run subscribes to the stream and republishes every event until the
// subscription closes (stream shutdown or lag drop). It blocks; run it on its
// own goroutine.
func (m *Mirror) Run(stream *broadcast.Stream) {
	sub := stream.Subscribe()
	defer sub.Cancel()

	for ev := range sub.Events() {
		data, err := protocol.EncodeServerEvent(ev)
		if err != nil {
			log.Printf("messaging: encode %q event: %v", ev.EventKind(), err)
			continue
		}
		if err := m.conn.Publish(m.subject, data); err != nil {
			log.Printf("messaging: publish %q event: %v", ev.EventKind(), err)
		}
	}
	log.Printf("messaging: event mirror stopped")
}

// Close drains and closes the NATS connection.
func (m *Mirror) Close() {
	if err := m.conn.Drain(); err != nil {
		log.Printf("messaging: nats drain: %v", err)
	}
	m.conn.Close()
}
