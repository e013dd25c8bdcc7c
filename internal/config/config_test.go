package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.ListenAddr != ":3000" {
		t.Errorf("ListenAddr = %q, want :3000", c.ListenAddr)
	}
	if c.MaxConnections != 4096 {
		t.Errorf("MaxConnections = %d, want 4096", c.MaxConnections)
	}
	if c.HeartbeatMax != 5*time.Second {
		t.Errorf("HeartbeatMax = %s, want 5s", c.HeartbeatMax)
	}
	if c.TypingWindow != 1500*time.Millisecond {
		t.Errorf("TypingWindow = %s, want 1.5s", c.TypingWindow)
	}
	if c.StateQueueSize != 8 || c.BroadcastBuffer != 8 {
		t.Errorf("queue/buffer = %d/%d, want 8/8", c.StateQueueSize, c.BroadcastBuffer)
	}
	if c.NATSSubject != "chat.events" {
		t.Errorf("NATSSubject = %q, want chat.events", c.NATSSubject)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("TYPING_WINDOW", "2s")
	t.Setenv("MAX_CONNECTIONS", "16")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", c.ListenAddr)
	}
	if c.TypingWindow != 2*time.Second {
		t.Errorf("TypingWindow = %s, want 2s", c.TypingWindow)
	}
	if c.MaxConnections != 16 {
		t.Errorf("MaxConnections = %d, want 16", c.MaxConnections)
	}
	if c.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", c.RedisAddr)
	}
}

func TestLoadRejectsMalformedValue(t *testing.T) {
	t.Setenv("HEARTBEAT_MAX_INTERVAL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("Load: expected error for malformed duration")
	}
}
