// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the chat server. All state is in-memory and
// process-lifetime only; the only external services are optional (NATS event
// mirror, Redis rate limiting) and the bot completion endpoint.
type Config struct {
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":3000"`
	MaxConnections int           `env:"MAX_CONNECTIONS" envDefault:"4096"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	HeartbeatMax  time.Duration `env:"HEARTBEAT_MAX_INTERVAL" envDefault:"5s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"2s"`

	TypingWindow    time.Duration `env:"TYPING_WINDOW" envDefault:"1500ms"`
	StateQueueSize  int           `env:"STATE_QUEUE_SIZE" envDefault:"8"`
	BroadcastBuffer int           `env:"BROADCAST_BUFFER" envDefault:"8"`

	GroqAPIKey string `env:"GROQ_API_KEY"`
	GroqURL    string `env:"GROQ_API_URL"`
	GroqModel  string `env:"GROQ_MODEL" envDefault:"llama-3.3-70b-versatile"`

	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"chat.events"`

	RedisAddr string `env:"REDIS_ADDR"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return c, nil
}
