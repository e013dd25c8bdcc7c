// Package ws handles WebSocket connection management: upgrading HTTP
// connections, running the per-connection reader/writer pair, and evicting
// stale connections. Each connection forwards decoded client events to the
// state actor and relays every broadcast event back to the socket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"

	"github.com/parlor/chat-app/internal/broadcast"
	"github.com/parlor/chat-app/internal/metrics"
	"github.com/parlor/chat-app/internal/ratelimit"
	"github.com/parlor/chat-app/internal/state"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":3000"
	MaxConnections int           // hard cap on total connections
	HeartbeatMax   time.Duration // max silence between client heartbeats
	SweepInterval  time.Duration // how often the sweeper checks for stale connections
	WriteTimeout   time.Duration // timeout for WebSocket write operations
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":3000",
		MaxConnections: 4096,
		HeartbeatMax:   5 * time.Second,
		SweepInterval:  2 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Server upgrades HTTP connections to WebSocket and runs one reader and one
// writer goroutine per connection. The reader feeds the state actor; the
// writer drains a broadcast subscription.
type Server struct {
	config     ServerConfig
	actor      *state.Actor
	stream     *broadcast.Stream
	conns      *ConnectionManager
	limiter    *ratelimit.Limiter // nil disables rate limiting
	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time
}

// NewServer creates a Server forwarding client events to actor and relaying
// events from stream. limiter may be nil.
func NewServer(config ServerConfig, actor *state.Actor, stream *broadcast.Stream, limiter *ratelimit.Limiter) *Server {
	return &Server{
		config:  config,
		actor:   actor,
		stream:  stream,
		conns:   NewConnectionManager(),
		limiter: limiter,
		done:    make(chan struct{}),
	}
}

// Start configures the HTTP server, starts the stale-connection sweeper, and
// blocks on ListenAndServe.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	// Evict connections that have stopped sending anything at all, including
	// heartbeats; the reader's opportunistic check only fires when traffic
	// arrives.
	s.startSweeper()

	log.Printf("ws: server listening on %s (max_conns=%d, heartbeat_max=%s)",
		s.config.ListenAddr, s.config.MaxConnections, s.config.HeartbeatMax)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection using the
// gobwas/ws zero-copy upgrader and starts the connection's reader and writer.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	if s.limiter != nil {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.Allow(r.Context(), host, ratelimit.RuleConnect) {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	sock, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := newConn(uuid.New().String(), sock, s)
	s.conns.Add(c)
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	go c.readLoop()
	go c.writeLoop()

	log.Printf("ws: new connection id=%s (total=%d)", c.id, s.conns.Count())
}

// handleHealth responds with the server's health status as JSON, including
// the current connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// startSweeper runs a background goroutine that periodically closes
// connections whose last heartbeat is older than HeartbeatMax. Closing the
// socket unblocks the connection's reader, which then emits the Leave.
func (s *Server) startSweeper() {
	go func() {
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				now := time.Now()
				for _, c := range s.conns.All() {
					if age := now.Sub(c.lastHeartbeat()); age > s.config.HeartbeatMax {
						log.Printf("ws: sweeper closing stale connection id=%s last_heartbeat=%s ago",
							c.id, age.Round(time.Second))
						c.closeSocket()
					}
				}
			}
		}
	}()
}

// removeConn unregisters a connection. Called from the connection's own
// teardown; safe against double removal.
func (s *Server) removeConn(c *Conn) {
	if !s.conns.Remove(c.id) {
		return
	}
	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))
	log.Printf("ws: connection closed id=%s (total=%d)", c.id, s.conns.Count())
}

// Connections returns the connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown performs a graceful shutdown: it stops the HTTP listener, stops
// the sweeper, and closes all active connections. Writers terminate when the
// broadcast stream is closed by the caller.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("ws: http shutdown error: %v", err)
	}

	for _, c := range s.conns.All() {
		c.closeSocket()
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}
