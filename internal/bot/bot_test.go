package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeCompleter echoes its inputs so tests can assert prompt assembly.
type fakeCompleter struct {
	gotSystem string
	gotPrompt string
	reply     string
	err       error
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.gotSystem, f.gotPrompt = system, prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestRegistrySeedsDefaultBot(t *testing.T) {
	r := NewRegistry(&fakeCompleter{})

	bots := r.Bots()
	if len(bots) != 1 {
		t.Fatalf("roster length = %d, want 1", len(bots))
	}
	if bots[0].Name != DefaultBotName {
		t.Errorf("seeded bot = %q, want %q", bots[0].Name, DefaultBotName)
	}
	if bots[0].Owner != "" {
		t.Errorf("seeded bot owner = %q, want empty", bots[0].Owner)
	}
}

func TestGetResponseDefaultsToBuiltinBot(t *testing.T) {
	fc := &fakeCompleter{reply: "sure thing"}
	r := NewRegistry(fc)

	resp, err := r.GetResponse(context.Background(), "what time is it", "alice", "")
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if resp.BotName != DefaultBotName {
		t.Errorf("bot name = %q, want %q", resp.BotName, DefaultBotName)
	}
	if resp.Text != "sure thing" {
		t.Errorf("text = %q, want the completion reply", resp.Text)
	}
	if fc.gotPrompt != "alice asks: what time is it" {
		t.Errorf("prompt = %q, want requester-prefixed form", fc.gotPrompt)
	}
}

func TestGetResponseUnknownBot(t *testing.T) {
	r := NewRegistry(&fakeCompleter{})

	_, err := r.GetResponse(context.Background(), "hi", "alice", "nobody")
	if err == nil {
		t.Fatal("GetResponse: expected error for unknown bot")
	}
	if !strings.Contains(err.Error(), "nobody") {
		t.Errorf("error %q does not name the missing bot", err)
	}
}

func TestGetResponseAppendsLanguageConstraint(t *testing.T) {
	fc := &fakeCompleter{reply: "oui"}
	r := NewRegistry(fc)
	if err := r.AddBot(Bot{Name: "pierre", Owner: "alice", Instructions: "be polite", Language: "French"}); err != nil {
		t.Fatalf("AddBot: %v", err)
	}

	if _, err := r.GetResponse(context.Background(), "hello", "alice", "pierre"); err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if !strings.Contains(fc.gotSystem, "be polite") {
		t.Errorf("system prompt %q missing instructions", fc.gotSystem)
	}
	if !strings.Contains(fc.gotSystem, "Respond only in French.") {
		t.Errorf("system prompt %q missing language constraint", fc.gotSystem)
	}
}

func TestGetResponseWrapsCompleterError(t *testing.T) {
	cause := errors.New("rate limited")
	r := NewRegistry(&fakeCompleter{err: cause})

	_, err := r.GetResponse(context.Background(), "hi", "alice", "")
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped %v", err, cause)
	}
}

func TestAddBotRejectsDuplicates(t *testing.T) {
	r := NewRegistry(&fakeCompleter{})

	if err := r.AddBot(Bot{Name: "pirate", Owner: "alice"}); err != nil {
		t.Fatalf("first AddBot: %v", err)
	}
	if err := r.AddBot(Bot{Name: "pirate", Owner: "bob"}); err == nil {
		t.Error("second AddBot: expected duplicate-name error")
	}
	if err := r.AddBot(Bot{Name: "  "}); err == nil {
		t.Error("AddBot with blank name: expected error")
	}
}

func TestRemoveBotByNameOwnership(t *testing.T) {
	r := NewRegistry(&fakeCompleter{})
	if err := r.AddBot(Bot{Name: "pirate", Owner: "alice"}); err != nil {
		t.Fatalf("AddBot: %v", err)
	}

	tests := []struct {
		name      string
		bot       string
		requester string
		want      bool
	}{
		{"non-owner cannot remove", "pirate", "bob", false},
		{"unknown bot", "ghost", "alice", false},
		{"builtin bot is unremovable", DefaultBotName, "alice", false},
		{"owner removes own bot", "pirate", "alice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RemoveBotByName(tt.bot, tt.requester); got != tt.want {
				t.Errorf("RemoveBotByName(%q, %q) = %v, want %v", tt.bot, tt.requester, got, tt.want)
			}
		})
	}

	if len(r.Bots()) != 1 {
		t.Errorf("roster length after removal = %d, want 1", len(r.Bots()))
	}
}
