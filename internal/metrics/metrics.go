// Package metrics provides Prometheus instrumentation for the MpChat session
// coordinator. It exposes a gauge for the connection state, counters for
// relay traffic, notifications and call transitions, and a histogram for
// roster loading.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState is the current connection state: 0 disconnected,
	// 1 connecting, 2 authenticating, 3 authenticated.
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mpchat_connection_state",
		Help: "Current connection state (0=disconnected, 3=authenticated)",
	})

	// EventsReceived counts inbound relay events, labeled by event type.
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpchat_events_received_total",
		Help: "Total number of inbound relay events",
	}, []string{"type"})

	// CommandsSent counts outbound commands written to the link.
	CommandsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpchat_commands_sent_total",
		Help: "Total number of outbound commands sent",
	}, []string{"type"})

	// CommandsRejected counts commands dropped by the outbound gate or by a
	// failed link write.
	CommandsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpchat_commands_rejected_total",
		Help: "Total number of outbound commands that were not sent",
	}, []string{"type"})

	// StaleEvents counts inbound events dropped because they no longer match
	// the current chat, call, peer or link.
	StaleEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpchat_stale_events_total",
		Help: "Total number of inbound events dropped as stale",
	}, []string{"type"})

	// NotificationsPosted counts notifications, labeled by severity.
	NotificationsPosted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpchat_notifications_total",
		Help: "Total number of notifications posted",
	}, []string{"severity"})

	// CallTransitions counts call phase changes.
	CallTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpchat_call_transitions_total",
		Help: "Total number of call phase transitions",
	}, []string{"from", "to"})

	// RosterLoadDuration records the time taken by the directory fetch.
	RosterLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mpchat_roster_load_seconds",
		Help:    "Roster fetch latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		EventsReceived,
		CommandsSent,
		CommandsRejected,
		StaleEvents,
		NotificationsPosted,
		CallTransitions,
		RosterLoadDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
