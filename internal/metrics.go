package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatrelay/internal/session"
)

var inboundEvents = map[string]struct{}{
	session.EventJoin:           {},
	session.EventSend:           {},
	session.EventTyping:         {},
	session.EventPrivateMessage: {},
	session.EventJoinRoom:       {},
	session.EventLeaveRoom:      {},
	session.EventReaction:       {},
	session.EventRead:           {},
	session.EventLoadMore:       {},
	session.EventSearch:         {},
	session.EventDisconnect:     {},
}

// Metrics owns the Prometheus collectors for one server. Collectors live on
// a private registry so several servers can run in one process (tests, local
// mode) without colliding on the default registerer.
type Metrics struct {
	registry        *prometheus.Registry
	activeConns     prometheus.Gauge
	activeSessions  prometheus.Gauge
	events          *prometheus.CounterVec
	invalidPayloads *prometheus.CounterVec
	messagesStored  *prometheus.CounterVec
	droppedFrames   prometheus.Counter
	persistFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_ws_connections",
			Help: "Current number of open websocket connections",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_sessions",
			Help: "Current number of joined sessions",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_events_total",
			Help: "Inbound events handled, by event name",
		}, []string{"event"}),
		invalidPayloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_invalid_payloads_total",
			Help: "Inbound frames rejected as malformed, by event name",
		}, []string{"event"}),
		messagesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_messages_stored_total",
			Help: "Messages appended to the in-memory store",
		}, []string{"kind"}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_dropped_frames_total",
			Help: "Outbound frames dropped because a client could not keep up",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_persistence_failures_total",
			Help: "Write-behind persistence operations that failed or were dropped",
		}),
	}
	m.registry.MustRegister(
		m.activeConns,
		m.activeSessions,
		m.events,
		m.invalidPayloads,
		m.messagesStored,
		m.droppedFrames,
		m.persistFailures,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) IncConn() {
	m.activeConns.Inc()
}

func (m *Metrics) DecConn() {
	m.activeConns.Dec()
}

func (m *Metrics) FrameDropped() {
	m.droppedFrames.Inc()
}

func (m *Metrics) PersistFailed() {
	m.persistFailures.Inc()
}

// EventHandled, InvalidPayload, MessageStored and SessionsChanged make
// Metrics a session.Observer.

func (m *Metrics) EventHandled(event string) {
	m.events.WithLabelValues(eventLabel(event)).Inc()
}

func (m *Metrics) InvalidPayload(event string) {
	m.invalidPayloads.WithLabelValues(eventLabel(event)).Inc()
}

func (m *Metrics) MessageStored(private bool) {
	kind := "room"
	if private {
		kind = "private"
	}
	m.messagesStored.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionsChanged(active int) {
	m.activeSessions.Set(float64(active))
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// client-controlled event names would otherwise grow label cardinality
func eventLabel(event string) string {
	if _, ok := inboundEvents[event]; ok {
		return event
	}
	return "unknown"
}
