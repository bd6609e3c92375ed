package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChatMetrics provides observability for the chat core and its adapters.
//
// The interface is optional everywhere it is accepted: passing nil (or the
// value returned by NewChatMetrics before InitRegistry) yields no-op
// behavior.
type ChatMetrics interface {
	// RecordCommand records one dispatched command with its verb, handler
	// duration and outcome ("ok" or the protocol error code).
	RecordCommand(verb string, duration time.Duration, outcome string)

	// RecordConnectionAccepted increments the accepted-connections counter
	// for the named adapter protocol ("tcp", "ws").
	RecordConnectionAccepted(protocol string)

	// RecordConnectionClosed increments the closed-connections counter.
	RecordConnectionClosed(protocol string)

	// SetActiveSessions updates the live session gauge (any state). The
	// chat service is the sole writer; it counts sessions across every
	// transport.
	SetActiveSessions(count int)

	// SetOnlineUsers updates the reserved-usernames gauge.
	SetOnlineUsers(count int)

	// RecordBroadcast records one MSG fan-out and its recipient count.
	RecordBroadcast(recipients int)

	// RecordDirectMessage records one delivered DM.
	RecordDirectMessage()

	// RecordIdleDisconnect records a session torn down by the idle
	// supervisor.
	RecordIdleDisconnect()
}

type chatMetrics struct {
	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	connsAccepted    *prometheus.CounterVec
	connsClosed      *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	onlineUsers      prometheus.Gauge
	broadcastsTotal  prometheus.Counter
	broadcastFanout  prometheus.Histogram
	directMessages   prometheus.Counter
	idleDisconnects  prometheus.Counter
}

// NewChatMetrics creates a Prometheus-backed ChatMetrics instance, or a
// no-op implementation when InitRegistry has not been called.
func NewChatMetrics() ChatMetrics {
	if !IsEnabled() {
		return NewNoopChatMetrics()
	}

	reg := GetRegistry()

	return &chatMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linechat_commands_total",
				Help: "Total number of dispatched commands by verb and outcome",
			},
			[]string{"verb", "outcome"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linechat_command_duration_seconds",
				Help:    "Command handler duration in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"verb"},
		),
		connsAccepted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linechat_connections_accepted_total",
				Help: "Total number of accepted connections by adapter protocol",
			},
			[]string{"protocol"},
		),
		connsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "linechat_connections_closed_total",
				Help: "Total number of closed connections by adapter protocol",
			},
			[]string{"protocol"},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "linechat_active_sessions",
				Help: "Current number of live sessions, authenticated or not",
			},
		),
		onlineUsers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "linechat_online_users",
				Help: "Current number of reserved usernames",
			},
		),
		broadcastsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_broadcasts_total",
				Help: "Total number of MSG broadcasts",
			},
		),
		broadcastFanout: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "linechat_broadcast_recipients",
				Help:    "Recipient count per MSG broadcast",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		directMessages: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_direct_messages_total",
				Help: "Total number of delivered direct messages",
			},
		),
		idleDisconnects: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_idle_disconnects_total",
				Help: "Total number of sessions disconnected by the idle supervisor",
			},
		),
	}
}

func (m *chatMetrics) RecordCommand(verb string, duration time.Duration, outcome string) {
	m.commandsTotal.WithLabelValues(verb, outcome).Inc()
	m.commandDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

func (m *chatMetrics) RecordConnectionAccepted(protocol string) {
	m.connsAccepted.WithLabelValues(protocol).Inc()
}

func (m *chatMetrics) RecordConnectionClosed(protocol string) {
	m.connsClosed.WithLabelValues(protocol).Inc()
}

func (m *chatMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *chatMetrics) SetOnlineUsers(count int) {
	m.onlineUsers.Set(float64(count))
}

func (m *chatMetrics) RecordBroadcast(recipients int) {
	m.broadcastsTotal.Inc()
	m.broadcastFanout.Observe(float64(recipients))
}

func (m *chatMetrics) RecordDirectMessage() {
	m.directMessages.Inc()
}

func (m *chatMetrics) RecordIdleDisconnect() {
	m.idleDisconnects.Inc()
}

// NewNoopChatMetrics returns a ChatMetrics implementation that discards
// everything.
func NewNoopChatMetrics() ChatMetrics {
	return noopChatMetrics{}
}

type noopChatMetrics struct{}

func (noopChatMetrics) RecordCommand(verb string, duration time.Duration, outcome string) {}
func (noopChatMetrics) RecordConnectionAccepted(protocol string)                          {}
func (noopChatMetrics) RecordConnectionClosed(protocol string)                            {}
func (noopChatMetrics) SetActiveSessions(count int)                                       {}
func (noopChatMetrics) SetOnlineUsers(count int)                                          {}
func (noopChatMetrics) RecordBroadcast(recipients int)                                    {}
func (noopChatMetrics) RecordDirectMessage()                                              {}
func (noopChatMetrics) RecordIdleDisconnect()                                             {}
