package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parlor/chat-app/internal/bot"
	"github.com/parlor/chat-app/internal/broadcast"
	"github.com/parlor/chat-app/internal/command"
	"github.com/parlor/chat-app/internal/config"
	"github.com/parlor/chat-app/internal/messaging"
	"github.com/parlor/chat-app/internal/metrics"
	"github.com/parlor/chat-app/internal/protocol"
	"github.com/parlor/chat-app/internal/ratelimit"
	"github.com/parlor/chat-app/internal/render"
	"github.com/parlor/chat-app/internal/state"
	"github.com/parlor/chat-app/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log.Printf("Parlor chat server starting")
	log.Printf("  listen_addr:      %s", cfg.ListenAddr)
	log.Printf("  max_connections:  %d", cfg.MaxConnections)
	log.Printf("  heartbeat_max:    %s", cfg.HeartbeatMax)
	log.Printf("  typing_window:    %s", cfg.TypingWindow)
	log.Printf("  state_queue:      %d", cfg.StateQueueSize)
	log.Printf("  broadcast_buffer: %d", cfg.BroadcastBuffer)

	stream := broadcast.New(cfg.BroadcastBuffer)
	stream.OnDrop(func() { metrics.SubscribersDropped.Inc() })

	renderer := render.New()

	// --- Bot collaborator ---
	completer := bot.NewGroqClient(bot.GroqConfig{
		APIKey: cfg.GroqAPIKey,
		URL:    cfg.GroqURL,
		Model:  cfg.GroqModel,
	})
	registry := bot.NewRegistry(completer)

	// --- State actor ---
	actor := state.New(state.Config{
		QueueSize:    cfg.StateQueueSize,
		TypingWindow: cfg.TypingWindow,
	}, stream, renderer, nil)

	// Synthetic messages re-enter the pipeline as regular NewMessage requests
	// but are never re-parsed for commands.
	inject := func(sender, body string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		msg := protocol.ChatMessage{
			SendTime: time.Now().UTC(),
			Sender:   sender,
			Body:     body,
		}
		if err := actor.Submit(ctx, state.NewMessage{Message: msg}); err != nil {
			log.Printf("failed to inject message from %q: %v", sender, err)
		}
	}
	dispatcher := command.NewDispatcher(registry, inject)
	actor.SetReactor(func(msg protocol.ChatMessage) {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		dispatcher.React(ctx, msg)
	})

	actorCtx, stopActor := context.WithCancel(context.Background())
	go actor.Run(actorCtx)

	// --- Optional Redis rate limiting ---
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		limiter, err = ratelimit.NewLimiter(cfg.RedisAddr)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		log.Printf("  redis_addr:       %s", cfg.RedisAddr)
	}

	// --- Optional NATS event mirror ---
	var mirror *messaging.Mirror
	if cfg.NATSURL != "" {
		mirrorCfg := messaging.DefaultMirrorConfig()
		mirrorCfg.URL = cfg.NATSURL
		mirrorCfg.Subject = cfg.NATSSubject
		mirror, err = messaging.NewMirror(mirrorCfg)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		go mirror.Run(stream)
		log.Printf("  nats_url:         %s", cfg.NATSURL)
	}

	server := ws.NewServer(ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		MaxConnections: cfg.MaxConnections,
		HeartbeatMax:   cfg.HeartbeatMax,
		SweepInterval:  cfg.SweepInterval,
		WriteTimeout:   cfg.WriteTimeout,
	}, actor, stream, limiter)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		stream.Close()
		stopActor()
		if mirror != nil {
			mirror.Close()
		}
		if limiter != nil {
			if err := limiter.Close(); err != nil {
				log.Printf("rate limiter close error: %v", err)
			}
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
