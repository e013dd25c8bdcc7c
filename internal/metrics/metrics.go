// Package metrics provides Prometheus instrumentation for the chat server:
// gauges for connection and presence counts, counters for message and command
// throughput, and a histogram for render latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parlor_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the number of distinct names with at least one
	// open connection.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parlor_online_users",
		Help: "Current number of distinct online users",
	})

	// MessagesTotal counts messages processed, labeled by type: "added",
	// "rejected", or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"})

	// CommandsTotal counts dispatched commands by command name.
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_commands_total",
		Help: "Total number of chat commands dispatched",
	}, []string{"command"})

	// SubscribersDropped counts broadcast subscribers disconnected for
	// lagging behind the stream.
	SubscribersDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parlor_subscribers_dropped_total",
		Help: "Total number of broadcast subscribers dropped for lagging",
	})

	// RenderDuration records Markdown render latency in seconds.
	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parlor_render_duration_seconds",
		Help:    "Markdown render latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		MessagesTotal,
		CommandsTotal,
		SubscribersDropped,
		RenderDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
