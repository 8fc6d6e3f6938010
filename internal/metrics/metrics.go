// Package metrics provides Prometheus instrumentation for the chat relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsOpen tracks the current number of open relay connections.
	ConnectionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "classpage_chat_connections_open",
		Help: "Current number of open chat websocket connections",
	})

	// EventsBroadcast counts events fanned out to connections, labeled by
	// kind: "message", "typing" or "stopTyping".
	EventsBroadcast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classpage_chat_events_broadcast_total",
		Help: "Total number of chat events broadcast to connections",
	}, []string{"kind"})

	// FramesDropped counts inbound frames dropped at the boundary, labeled by
	// reason: "malformed" or "rate_limited".
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classpage_chat_frames_dropped_total",
		Help: "Total number of inbound frames dropped",
	}, []string{"reason"})

	// PersistFailures counts message persistence failures. Broadcast still
	// proceeds when this increments.
	PersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "classpage_chat_persist_failures_total",
		Help: "Total number of failed message persistence attempts",
	})

	// WelcomesSent counts welcome messages actually sent (after dedup).
	WelcomesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "classpage_chat_welcomes_sent_total",
		Help: "Total number of welcome messages sent",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsOpen,
		EventsBroadcast,
		FramesDropped,
		PersistFailures,
		WelcomesSent,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
