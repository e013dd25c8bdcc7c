package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/parlor/chat-app/loadtest/client"
	"github.com/parlor/chat-app/loadtest/stats"
)

// runChat implements the room chat load test. Every simulated user joins the
// shared room, sends messages at a fixed interval, and measures broadcast
// latency from the send timestamp embedded in each message to the moment its
// own message_added event comes back. Because every message fans out to every
// connection, total delivery work grows with the square of the user count.
func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:3000/ws", "WebSocket server URL")
	users := fs.Int("users", 50, "Number of simulated users in the room")
	rampUp := fs.Duration("ramp", 5*time.Second, "Ramp-up duration for connection creation")
	chatDuration := fs.Duration("chat-duration", 30*time.Second, "How long each user chats")
	msgInterval := fs.Duration("msg-interval", 2*time.Second, "Interval between messages per user")
	msgSize := fs.Int("msg-size", 128, "Size of each message payload in bytes")
	typing := fs.Bool("typing", true, "Send a typing pulse before each message")
	heartbeat := fs.Duration("heartbeat", 2*time.Second, "Heartbeat interval per connection")
	metricsURL := fs.String("metrics-url", "http://localhost:3000/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	fmt.Printf("Chat test: %d users to %s (ramp=%s, chat=%s, interval=%s, msg-size=%d)\n",
		*users, *url, *rampUp, *chatDuration, *msgInterval, *msgSize)

	// Set up signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	// Set up metrics scraper.
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	var mu sync.Mutex
	clients := make([]*client.Client, 0, *users)

	var totalReceived atomic.Int64

	// -----------------------------------------------------------------------
	// Phase 1 — Connect all users
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 1: Connect all users ---")

	interval := *rampUp / time.Duration(*users)
	if interval <= 0 {
		interval = time.Millisecond
	}

	for i := 0; i < *users; i++ {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during ramp-up.")
			cleanup(clients)
			scraper.Stop()
			collector.Report()
			return
		case <-time.After(interval):
		}

		name := fmt.Sprintf("chat-%d", i)

		connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
		c, err := client.New(connCtx, *url, *heartbeat)
		connCancel()
		if err != nil {
			collector.AddError()
			continue
		}

		// Measure broadcast latency on this user's own echoed messages.
		c.On(client.KindMessageAdded, func(data msgpack.RawMessage) {
			totalReceived.Add(1)
			var payload struct {
				Message client.ChatMessage `msgpack:"message"`
			}
			if err := msgpack.Unmarshal(data, &payload); err != nil {
				return
			}
			if payload.Message.Sender == name && !payload.Message.SendTime.IsZero() {
				collector.AddBroadcastLatency(time.Since(payload.Message.SendTime))
			}
		})

		if err := c.Init(name); err != nil {
			collector.AddError()
			c.Close()
			continue
		}

		collector.AddConnect(c.Metrics().ConnectLatency)

		mu.Lock()
		clients = append(clients, c)
		mu.Unlock()
	}

	fmt.Printf("Connected %d/%d users (%d errors)\n",
		collector.ConnectionCount(), *users, collector.ErrorCount())

	// -----------------------------------------------------------------------
	// Phase 2 — Chat
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 2: Chat ---")

	payload := strings.Repeat("x", *msgSize)
	chatCtx, chatCancel := context.WithTimeout(ctx, *chatDuration)
	defer chatCancel()

	var wg sync.WaitGroup
	mu.Lock()
	for _, c := range clients {
		wg.Add(1)
		go func(c *client.Client) {
			defer wg.Done()
			ticker := time.NewTicker(*msgInterval)
			defer ticker.Stop()

			for {
				select {
				case <-chatCtx.Done():
					return
				case <-c.Done():
					collector.AddError()
					return
				case <-ticker.C:
					if *typing {
						_ = c.SendTypingPulse()
					}
					if err := c.SendMessage(payload); err != nil {
						collector.AddError()
						return
					}
				}
			}
		}(c)
	}
	mu.Unlock()

	// Progress reporting while the chat phase runs.
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-chatCtx.Done():
				return
			case <-ticker.C:
				fmt.Printf("  [chat] events received: %d  errors: %d\n",
					totalReceived.Load(), collector.ErrorCount())
			}
		}
	}()

	wg.Wait()
	<-progressDone

	// -----------------------------------------------------------------------
	// Cleanup and report
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Cleanup ---")
	mu.Lock()
	cleanup(clients)
	mu.Unlock()

	scraper.Stop()
	fmt.Printf("\nTotal events received: %d\n", totalReceived.Load())
	collector.Report()
}

func cleanup(clients []*client.Client) {
	fmt.Printf("Closing %d connections...\n", len(clients))
	for _, c := range clients {
		c.Close()
	}
}
