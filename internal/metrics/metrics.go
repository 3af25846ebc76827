// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for live sessions, channels, and parked long-poll
// waiters, counters for message throughput, and a histogram for long-poll
// wait time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsLive tracks the current number of live sessions.
	SessionsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_live",
		Help: "Current number of live sessions",
	})

	// ChannelsTotal tracks the number of channels created since start.
	// Channels are never deleted, so this gauge only rises.
	ChannelsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_channels_total",
		Help: "Number of channels created since process start",
	})

	// WaitersParked tracks the current number of parked long-poll requests
	// across all channels.
	WaitersParked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_waiters_parked",
		Help: "Current number of parked long-poll waiters",
	})

	// MessagesTotal counts appended messages, labeled by type:
	// "msg", "join", or "part".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of messages appended",
	}, []string{"type"}) // type = "msg", "join", "part"

	// WaitersExpired counts waiters timed out by the channel reaper.
	WaitersExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_waiters_expired_total",
		Help: "Total number of long-poll waiters expired by the reaper",
	})

	// SessionsReaped counts sessions destroyed by the idle-timeout reaper.
	SessionsReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_reaped_total",
		Help: "Total number of sessions destroyed by the idle reaper",
	})

	// PollWaitSeconds records how long /recv requests waited before
	// resolving, whether by new data or by timeout.
	PollWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_poll_wait_seconds",
		Help:    "Time /recv requests spent waiting for resolution",
		Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 20, 30},
	})
)

func init() {
	prometheus.MustRegister(
		SessionsLive,
		ChannelsTotal,
		WaitersParked,
		MessagesTotal,
		WaitersExpired,
		SessionsReaped,
		PollWaitSeconds,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
