package state

import "github.com/parlor/chat-app/internal/protocol"

// Request is a state-change request consumed by the Actor. All mutations of
// presence, typing, observer, and message-ID state happen through requests;
// there is no other path to the Actor's maps.
type Request interface {
	request()
}

// Join records one more open connection for Name.
type Join struct {
	Name string
}

// Leave records one fewer open connection for Name.
type Leave struct {
	Name string
}

// TypingPulse reports that Name typed recently. Bursts of pulses coalesce
// into a single start/stop indicator pair with a trailing debounce.
type TypingPulse struct {
	Name string
}

// NewMessage submits a message for ID assignment, rendering, and broadcast.
// FromUser marks messages that arrived over a connection; only those are
// handed to the command reactor, so synthetic System and bot messages can
// never recurse through command parsing.
type NewMessage struct {
	Message  protocol.ChatMessage
	FromUser bool
}

// ReadUpTo relays a read report. The actor keeps no read state; each client
// reconstructs read-by sets from the relayed receipts.
type ReadUpTo struct {
	Reader   string
	Earliest uint32
}

// Visibility reports whether Name's view of the room is visible.
type Visibility struct {
	Name    string
	Visible bool
}

// typingExpired is the deferred debounce check, re-entering the actor so the
// comparison and removal happen inside the single consumer.
type typingExpired struct {
	Name string
	Gen  uint64
}

func (Join) request()          {}
func (Leave) request()         {}
func (TypingPulse) request()   {}
func (NewMessage) request()    {}
func (ReadUpTo) request()      {}
func (Visibility) request()    {}
func (typingExpired) request() {}
