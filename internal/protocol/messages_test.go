package protocol

import (
	"strings"
	"testing"
	"time"
)

func TestIsHeartbeat(t *testing.T) {
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"sentinel", "<Heartbeat>", true},
		{"empty", "", false},
		{"prefix only", "<Heartbeat", false},
		{"trailing data", "<Heartbeat>x", false},
		{"regular text", "hello", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHeartbeat([]byte(tt.data)); got != tt.want {
				t.Errorf("IsHeartbeat(%q) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestClientEventRoundTrip(t *testing.T) {
	replyTo := uint32(3)
	events := []ClientEvent{
		&InitEvent{Name: "alice"},
		&SendEvent{Message: ChatMessage{
			SendTime: time.Unix(1700000000, 0).UTC(),
			Sender:   "alice",
			Body:     "hello",
			ReplyTo:  &replyTo,
		}},
		&TypingPulseEvent{},
		&ReadUpToEvent{Earliest: 5},
		&VisibilityEvent{Visible: true},
	}

	for _, ev := range events {
		t.Run(ev.EventKind(), func(t *testing.T) {
			data, err := EncodeClientEvent(ev)
			if err != nil {
				t.Fatalf("EncodeClientEvent: %v", err)
			}
			got, err := DecodeClientEvent(data)
			if err != nil {
				t.Fatalf("DecodeClientEvent: %v", err)
			}
			if got.EventKind() != ev.EventKind() {
				t.Errorf("round trip kind = %q, want %q", got.EventKind(), ev.EventKind())
			}
		})
	}
}

func TestDecodeClientEvent_SendPayload(t *testing.T) {
	sent := &SendEvent{Message: ChatMessage{
		SendTime: time.Unix(1700000000, 0).UTC(),
		Sender:   "bob",
		Body:     "hi there",
	}}
	data, err := EncodeClientEvent(sent)
	if err != nil {
		t.Fatalf("EncodeClientEvent: %v", err)
	}

	got, err := DecodeClientEvent(data)
	if err != nil {
		t.Fatalf("DecodeClientEvent: %v", err)
	}
	send, ok := got.(*SendEvent)
	if !ok {
		t.Fatalf("decoded %T, want *SendEvent", got)
	}
	if send.Message.Sender != "bob" || send.Message.Body != "hi there" {
		t.Errorf("decoded message = %+v, want sender bob, body %q", send.Message, "hi there")
	}
	if send.Message.ReplyTo != nil {
		t.Errorf("ReplyTo = %v, want nil", send.Message.ReplyTo)
	}
	if !send.Message.SendTime.Equal(sent.Message.SendTime) {
		t.Errorf("SendTime = %v, want %v", send.Message.SendTime, sent.Message.SendTime)
	}
}

func TestDecodeClientEvent_Errors(t *testing.T) {
	serverFrame, err := EncodeServerEvent(&UserTyping{Name: "alice"})
	if err != nil {
		t.Fatalf("EncodeServerEvent: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not msgpack", []byte("garbage")},
		{"empty frame", nil},
		{"server-only kind", serverFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeClientEvent(tt.data); err == nil {
				t.Errorf("DecodeClientEvent(%q) = nil error, want decode error", tt.data)
			}
		})
	}
}

func TestServerEventRoundTrip(t *testing.T) {
	events := []ServerEvent{
		&MessageAdded{Message: ChatMessage{ID: 7, Sender: "alice", Body: "<p>hi</p>"}},
		&UserTyping{Name: "bob"},
		&UserStoppedTyping{Name: "bob"},
		&PresenceSnapshot{Names: []string{"alice", "bob"}},
		&ReadReceipt{Reader: "alice", Earliest: 5},
		&UserObserving{Name: "carol"},
		&UserNotObserving{Name: "carol"},
	}

	for _, ev := range events {
		t.Run(ev.EventKind(), func(t *testing.T) {
			data, err := EncodeServerEvent(ev)
			if err != nil {
				t.Fatalf("EncodeServerEvent: %v", err)
			}
			got, err := DecodeServerEvent(data)
			if err != nil {
				t.Fatalf("DecodeServerEvent: %v", err)
			}
			if got.EventKind() != ev.EventKind() {
				t.Errorf("round trip kind = %q, want %q", got.EventKind(), ev.EventKind())
			}
		})
	}
}

func TestValidateMessageBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"plain text", "hello world", false},
		{"empty", "", true},
		{"over byte limit", strings.Repeat("x", MaxBodyBytes+1), true},
		{"over char limit", strings.Repeat("é", MaxBodyChars+1), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
		{"at char limit", strings.Repeat("x", MaxBodyChars), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageBody(tt.body)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessageBody() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
