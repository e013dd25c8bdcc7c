package state

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/parlor/chat-app/internal/broadcast"
	"github.com/parlor/chat-app/internal/protocol"
)

// stubRenderer wraps bodies in a paragraph without touching Markdown, so
// tests can assert rendering happened without depending on the renderer.
type stubRenderer struct{}

func (stubRenderer) Render(body string) string { return "<p>" + body + "</p>" }

type fixture struct {
	actor  *Actor
	sub    *broadcast.Subscription
	cancel context.CancelFunc
}

func newFixture(t *testing.T, cfg Config, reactor Reactor) *fixture {
	t.Helper()
	stream := broadcast.New(64)
	sub := stream.Subscribe()
	actor := New(cfg, stream, stubRenderer{}, reactor)

	ctx, cancel := context.WithCancel(context.Background())
	go actor.Run(ctx)
	t.Cleanup(cancel)

	return &fixture{actor: actor, sub: sub, cancel: cancel}
}

func (f *fixture) submit(t *testing.T, req Request) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.actor.Submit(ctx, req); err != nil {
		t.Fatalf("Submit(%T): %v", req, err)
	}
}

func (f *fixture) next(t *testing.T) protocol.ServerEvent {
	t.Helper()
	select {
	case ev, ok := <-f.sub.Events():
		if !ok {
			t.Fatal("subscription closed while waiting for event")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (f *fixture) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-f.sub.Events():
		t.Fatalf("unexpected event %T (%+v)", ev, ev)
	case <-time.After(d):
	}
}

func TestMessageIDsStrictlyIncreasing(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	const n = 10
	for i := 0; i < n; i++ {
		f.submit(t, NewMessage{Message: protocol.ChatMessage{Sender: "alice", Body: "m"}})
	}

	for i := 0; i < n; i++ {
		ev := f.next(t)
		added, ok := ev.(*protocol.MessageAdded)
		if !ok {
			t.Fatalf("event %d: got %T, want *protocol.MessageAdded", i, ev)
		}
		if added.Message.ID != uint32(i) {
			t.Errorf("event %d: id = %d, want %d", i, added.Message.ID, i)
		}
	}
}

func TestNewMessageRendersBody(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.submit(t, NewMessage{Message: protocol.ChatMessage{Sender: "alice", Body: "hello"}})

	added, ok := f.next(t).(*protocol.MessageAdded)
	if !ok {
		t.Fatal("expected MessageAdded")
	}
	if added.Message.Body != "<p>hello</p>" {
		t.Errorf("body = %q, want %q", added.Message.Body, "<p>hello</p>")
	}
	if added.Message.Sender != "alice" {
		t.Errorf("sender = %q, want %q", added.Message.Sender, "alice")
	}
}

func TestPresenceRefcounting(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	// Three joins for the same name: each join broadcasts a snapshot with
	// the name present.
	for i := 0; i < 3; i++ {
		f.submit(t, Join{Name: "alice"})
		snap, ok := f.next(t).(*protocol.PresenceSnapshot)
		if !ok {
			t.Fatal("expected PresenceSnapshot")
		}
		if !reflect.DeepEqual(snap.Names, []string{"alice"}) {
			t.Errorf("join %d: names = %v, want [alice]", i, snap.Names)
		}
	}

	// Two leaves still report alice present.
	for i := 0; i < 2; i++ {
		f.submit(t, Leave{Name: "alice"})
		snap := f.next(t).(*protocol.PresenceSnapshot)
		if !reflect.DeepEqual(snap.Names, []string{"alice"}) {
			t.Errorf("leave %d: names = %v, want [alice]", i, snap.Names)
		}
	}

	// The third leave removes the entry.
	f.submit(t, Leave{Name: "alice"})
	snap := f.next(t).(*protocol.PresenceSnapshot)
	if len(snap.Names) != 0 {
		t.Errorf("final snapshot names = %v, want empty", snap.Names)
	}
}

func TestPresenceSnapshotSorted(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.submit(t, Join{Name: "carol"})
	f.next(t)
	f.submit(t, Join{Name: "alice"})
	f.next(t)
	f.submit(t, Join{Name: "bob"})

	snap := f.next(t).(*protocol.PresenceSnapshot)
	want := []string{"alice", "bob", "carol"}
	if !reflect.DeepEqual(snap.Names, want) {
		t.Errorf("names = %v, want %v", snap.Names, want)
	}
}

func TestLeaveFloorsAtZero(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	// A leave for an unknown name still publishes a snapshot and must not
	// underflow into a negative count.
	f.submit(t, Leave{Name: "ghost"})
	snap := f.next(t).(*protocol.PresenceSnapshot)
	if len(snap.Names) != 0 {
		t.Errorf("names = %v, want empty", snap.Names)
	}

	f.submit(t, Join{Name: "ghost"})
	snap = f.next(t).(*protocol.PresenceSnapshot)
	if !reflect.DeepEqual(snap.Names, []string{"ghost"}) {
		t.Errorf("names after join = %v, want [ghost]", snap.Names)
	}
}

func TestTypingDebounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TypingWindow = 50 * time.Millisecond
	f := newFixture(t, cfg, nil)

	f.submit(t, TypingPulse{Name: "alice"})

	if _, ok := f.next(t).(*protocol.UserTyping); !ok {
		t.Fatal("expected UserTyping after first pulse")
	}

	stop, ok := f.next(t).(*protocol.UserStoppedTyping)
	if !ok {
		t.Fatal("expected UserStoppedTyping after debounce window")
	}
	if stop.Name != "alice" {
		t.Errorf("stopped name = %q, want alice", stop.Name)
	}

	// No further events: exactly one stop per burst.
	f.expectNone(t, 3*cfg.TypingWindow)
}

func TestTypingPulseSupersedesTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TypingWindow = 80 * time.Millisecond
	f := newFixture(t, cfg, nil)

	f.submit(t, TypingPulse{Name: "alice"})
	if _, ok := f.next(t).(*protocol.UserTyping); !ok {
		t.Fatal("expected UserTyping after first pulse")
	}

	// A second pulse inside the window supersedes the first timer; no start
	// event is re-broadcast and no stop fires for the superseded timer.
	time.Sleep(cfg.TypingWindow / 2)
	f.submit(t, TypingPulse{Name: "alice"})

	ev := f.next(t)
	stop, ok := ev.(*protocol.UserStoppedTyping)
	if !ok {
		t.Fatalf("got %T, want a single *protocol.UserStoppedTyping", ev)
	}
	if stop.Name != "alice" {
		t.Errorf("stopped name = %q, want alice", stop.Name)
	}
	f.expectNone(t, 3*cfg.TypingWindow)
}

func TestReadReceiptRelayedVerbatim(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.submit(t, ReadUpTo{Reader: "alice", Earliest: 5})

	receipt, ok := f.next(t).(*protocol.ReadReceipt)
	if !ok {
		t.Fatal("expected ReadReceipt")
	}
	if receipt.Reader != "alice" || receipt.Earliest != 5 {
		t.Errorf("receipt = %+v, want reader alice earliest 5", receipt)
	}
}

func TestVisibilityTransitions(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.submit(t, Visibility{Name: "alice", Visible: true})
	if _, ok := f.next(t).(*protocol.UserObserving); !ok {
		t.Fatal("expected UserObserving")
	}

	// Repeated visible reports are idempotent.
	f.submit(t, Visibility{Name: "alice", Visible: true})
	f.expectNone(t, 50*time.Millisecond)

	f.submit(t, Visibility{Name: "alice", Visible: false})
	if _, ok := f.next(t).(*protocol.UserNotObserving); !ok {
		t.Fatal("expected UserNotObserving")
	}

	// Hidden reports for a non-observing name are ignored.
	f.submit(t, Visibility{Name: "alice", Visible: false})
	f.expectNone(t, 50*time.Millisecond)
}

func TestLeaveClearsObserver(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.submit(t, Join{Name: "alice"})
	f.next(t) // snapshot
	f.submit(t, Visibility{Name: "alice", Visible: true})
	f.next(t) // observing

	f.submit(t, Leave{Name: "alice"})
	if _, ok := f.next(t).(*protocol.UserNotObserving); !ok {
		t.Fatal("expected UserNotObserving when last connection leaves")
	}
	snap, ok := f.next(t).(*protocol.PresenceSnapshot)
	if !ok {
		t.Fatal("expected PresenceSnapshot after leave")
	}
	if len(snap.Names) != 0 {
		t.Errorf("names = %v, want empty", snap.Names)
	}
}

func TestReactorReceivesOriginalUserMessage(t *testing.T) {
	got := make(chan protocol.ChatMessage, 1)
	reactor := func(msg protocol.ChatMessage) { got <- msg }
	f := newFixture(t, DefaultConfig(), reactor)

	f.submit(t, NewMessage{
		Message:  protocol.ChatMessage{Sender: "alice", Body: "%help"},
		FromUser: true,
	})
	f.next(t) // MessageAdded

	select {
	case msg := <-got:
		if msg.Body != "%help" {
			t.Errorf("reactor body = %q, want the pre-render original %q", msg.Body, "%help")
		}
		if msg.ID != 0 {
			t.Errorf("reactor message id = %d, want the pre-assignment 0", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reactor was not invoked for a user message")
	}

	// Synthetic messages must never reach the reactor.
	f.submit(t, NewMessage{
		Message: protocol.ChatMessage{Sender: "System", Body: "%help"},
	})
	f.next(t) // MessageAdded

	select {
	case msg := <-got:
		t.Fatalf("reactor invoked for synthetic message %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
