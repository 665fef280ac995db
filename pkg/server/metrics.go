package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Session metrics
	activeSessions       prometheus.Gauge
	loggedInUsers        prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter
	idleEvictions        prometheus.Counter

	// Protocol metrics
	commandsReceived *prometheus.CounterVec // by verb
	oversizedLines   prometheus.Counter
	directMessages   prometheus.Counter

	// Broadcast metrics
	broadcastFanout prometheus.Histogram
	broadcastsTotal prometheus.Counter
}

// NewMetrics creates a new metrics instance. Uses the default registry, so
// call at most once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linechat_active_sessions",
				Help: "Current number of live sessions (logged in or not)",
			},
		),
		loggedInUsers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "linechat_logged_in_users",
				Help: "Current number of sessions holding a username",
			},
		),
		sessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		sessionsDisconnected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_sessions_disconnected_total",
				Help: "Total number of sessions removed",
			},
		),
		idleEvictions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_idle_evictions_total",
				Help: "Total number of sessions evicted by the idle reaper",
			},
		),
		commandsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linechat_commands_received_total",
				Help: "Total number of commands received from clients by verb",
			},
			[]string{"verb"},
		),
		oversizedLines: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_oversized_lines_total",
				Help: "Total number of input buffers discarded for exceeding the line ceiling",
			},
		),
		directMessages: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_direct_messages_total",
				Help: "Total number of DMs delivered",
			},
		),
		broadcastFanout: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "linechat_broadcast_fanout",
				Help:    "Number of sessions that received each broadcast line",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000},
			},
		),
		broadcastsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_broadcasts_total",
				Help: "Total number of broadcast lines fanned out (unique lines, not deliveries)",
			},
		),
	}
}

// RecordActiveSessions updates the live session count
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordLoggedInUsers updates the claimed username count
func (m *Metrics) RecordLoggedInUsers(count int) {
	m.loggedInUsers.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected increments the session removal counter
func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

// RecordIdleEviction increments the reaper eviction counter
func (m *Metrics) RecordIdleEviction() {
	m.idleEvictions.Inc()
}

// RecordCommandReceived increments the received counter for a verb
func (m *Metrics) RecordCommandReceived(verb string) {
	m.commandsReceived.WithLabelValues(verb).Inc()
}

// RecordOversizedLine increments the discarded-buffer counter
func (m *Metrics) RecordOversizedLine() {
	m.oversizedLines.Inc()
}

// RecordDirectMessage increments the DM counter
func (m *Metrics) RecordDirectMessage() {
	m.directMessages.Inc()
}

// RecordBroadcast records one fan-out and how many sessions it reached
func (m *Metrics) RecordBroadcast(recipientCount int) {
	m.broadcastsTotal.Inc()
	m.broadcastFanout.Observe(float64(recipientCount))
}
