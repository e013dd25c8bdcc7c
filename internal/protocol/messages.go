// Package protocol defines the wire message types exchanged between chat
// clients and the server. Application frames carry MessagePack-encoded
// tagged unions with a "kind" discriminator; a single reserved text frame
// ("<Heartbeat>") is the out-of-band liveness signal and must be checked
// before attempting a structured decode.
package protocol

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// HeartbeatFrame is the literal text frame a client sends on its heartbeat
// cadence. It carries no payload and is never MessagePack-encoded.
const HeartbeatFrame = "<Heartbeat>"

// IsHeartbeat reports whether a text frame payload is the heartbeat sentinel.
func IsHeartbeat(data []byte) bool {
	return string(data) == HeartbeatFrame
}

// ---------------------------------------------------------------------------
// Kind constants
// ---------------------------------------------------------------------------

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

// ---------------------------------------------------------------------------
// Data model
// ---------------------------------------------------------------------------

// ChatMessage is a single chat message. The ID is assigned by the server and
// is zero until assignment; IDs are unique and strictly increasing in
// assignment order. ReplyTo, when set, should name an earlier ID, but a
// dangling reference is tolerated and simply fails to resolve client-side.
type ChatMessage struct {
	ID       uint32    `msgpack:"id"`
	SendTime time.Time `msgpack:"send_time"`
	Sender   string    `msgpack:"sender"`
	Body     string    `msgpack:"body"`
	ReplyTo  *uint32   `msgpack:"reply_to,omitempty"`
}

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// envelope is the on-wire shape of every structured frame: a kind
// discriminator plus the raw payload, decoded lazily into a concrete struct.
type envelope struct {
	Kind string             `msgpack:"kind"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// ---------------------------------------------------------------------------
// Client -> Server events
// ---------------------------------------------------------------------------

// ClientEvent is implemented by every client-originated structured event.
type ClientEvent interface {
	EventKind() string
}

// InitEvent binds a name to the connection. It must be the first structured
// event on every connection.
type InitEvent struct {
	Name string `msgpack:"name"`
}

// SendEvent submits a new chat message. The ID field of the embedded message
// is ignored and overwritten by the server.
type SendEvent struct {
	Message ChatMessage `msgpack:"message"`
}

// TypingPulseEvent signals that the user typed recently.
type TypingPulseEvent struct{}

// ReadUpToEvent reports that the client has read every message with an ID
// greater than or equal to Earliest.
type ReadUpToEvent struct {
	Earliest uint32 `msgpack:"earliest"`
}

// VisibilityEvent reports whether the client's view of the room is currently
// visible (e.g. the tab is focused).
type VisibilityEvent struct {
	Visible bool `msgpack:"visible"`
}

func (*InitEvent) EventKind() string        { return KindInit }
func (*SendEvent) EventKind() string        { return KindSend }
func (*TypingPulseEvent) EventKind() string { return KindTypingPulse }
func (*ReadUpToEvent) EventKind() string    { return KindReadUpTo }
func (*VisibilityEvent) EventKind() string  { return KindVisibility }

// ---------------------------------------------------------------------------
// Server -> Client events
// ---------------------------------------------------------------------------

// ServerEvent is implemented by every event published on the broadcast
// stream. All subscribers observe these in the same global order.
type ServerEvent interface {
	EventKind() string
}

// MessageAdded announces a new message with its assigned ID and rendered body.
type MessageAdded struct {
	Message ChatMessage `msgpack:"message"`
}

// UserTyping announces that a user started typing.
type UserTyping struct {
	Name string `msgpack:"name"`
}

// UserStoppedTyping announces that a user's typing debounce window elapsed.
type UserStoppedTyping struct {
	Name string `msgpack:"name"`
}

// PresenceSnapshot carries the full set of names with at least one open
// connection. It replaces, rather than patches, the client's presence view.
type PresenceSnapshot struct {
	Names []string `msgpack:"names"`
}

// ReadReceipt relays a client's read-up-to report verbatim.
type ReadReceipt struct {
	Reader   string `msgpack:"reader"`
	Earliest uint32 `msgpack:"earliest"`
}

// UserObserving announces that a user's view became visible.
type UserObserving struct {
	Name string `msgpack:"name"`
}

// UserNotObserving announces that a user's view became hidden.
type UserNotObserving struct {
	Name string `msgpack:"name"`
}

func (*MessageAdded) EventKind() string      { return KindMessageAdded }
func (*UserTyping) EventKind() string        { return KindUserTyping }
func (*UserStoppedTyping) EventKind() string { return KindUserStoppedTyping }
func (*PresenceSnapshot) EventKind() string  { return KindPresenceSnapshot }
func (*ReadReceipt) EventKind() string       { return KindReadReceipt }
func (*UserObserving) EventKind() string     { return KindUserObserving }
func (*UserNotObserving) EventKind() string  { return KindUserNotObserving }

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

func encode(kind string, payload interface{}) ([]byte, error) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q payload: %w", kind, err)
	}
	out, err := msgpack.Marshal(envelope{Kind: kind, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q envelope: %w", kind, err)
	}
	return out, nil
}

// EncodeServerEvent serializes a server event into wire bytes.
func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	return encode(ev.EventKind(), ev)
}

// EncodeClientEvent serializes a client event. The server itself never sends
// client events; this is for client implementations and tests.
func EncodeClientEvent(ev ClientEvent) ([]byte, error) {
	return encode(ev.EventKind(), ev)
}

// DecodeClientEvent parses wire bytes into a typed client event. A decode
// failure is a protocol violation: the caller is expected to close the
// connection rather than retry.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("protocol: missing or empty \"kind\" field")
	}

	var ev ClientEvent
	switch env.Kind {
	case KindInit:
		ev = &InitEvent{}
	case KindSend:
		ev = &SendEvent{}
	case KindTypingPulse:
		ev = &TypingPulseEvent{}
	case KindReadUpTo:
		ev = &ReadUpToEvent{}
	case KindVisibility:
		ev = &VisibilityEvent{}
	default:
		return nil, fmt.Errorf("protocol: unknown client event kind: %q", env.Kind)
	}

	if err := msgpack.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Kind, err)
	}
	return ev, nil
}

// DecodeServerEvent parses wire bytes into a typed server event. The server
// only encodes server events; this is for client implementations and tests.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}

	var ev ServerEvent
	switch env.Kind {
	case KindMessageAdded:
		ev = &MessageAdded{}
	case KindUserTyping:
		ev = &UserTyping{}
	case KindUserStoppedTyping:
		ev = &UserStoppedTyping{}
	case KindPresenceSnapshot:
		ev = &PresenceSnapshot{}
	case KindReadReceipt:
		ev = &ReadReceipt{}
	case KindUserObserving:
		ev = &UserObserving{}
	case KindUserNotObserving:
		ev = &UserNotObserving{}
	default:
		return nil, fmt.Errorf("protocol: unknown server event kind: %q", env.Kind)
	}

	if err := msgpack.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Kind, err)
	}
	return ev, nil
}
