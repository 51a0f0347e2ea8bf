// Package metrics exposes Prometheus counters and gauges for the run-of-show server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bbernstein/runofshow-go/internal/protocol"
)

// Metrics holds Prometheus counters and gauges for the run-of-show server.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	transitionsTotal    *prometheus.CounterVec
	rejectedTotal       *prometheus.CounterVec
	broadcastsTotal     *prometheus.CounterVec
	droppedTotal        *prometheus.CounterVec
	websocketConnection prometheus.Gauge
	rooms               prometheus.Gauge
	runningTimers       prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "runofshow_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "runofshow_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runofshow_transitions_total",
			Help: "Timer and ledger transitions applied, by operation",
		}, []string{"op"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runofshow_transitions_rejected_total",
			Help: "Transitions rejected as invalid, by operation",
		}, []string{"op"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runofshow_broadcasts_total",
			Help: "Room broadcasts published, by message type",
		}, []string{"type"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runofshow_broadcasts_dropped_total",
			Help: "Broadcasts dropped for slow subscribers, by message type",
		}, []string{"type"}),
		websocketConnection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runofshow_websocket_connections",
			Help: "Open WebSocket connections",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runofshow_rooms",
			Help: "Events with at least one subscriber",
		}),
		runningTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runofshow_running_timers",
			Help: "Main and sub-cue timers currently running",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.transitionsTotal,
		m.rejectedTotal,
		m.broadcastsTotal,
		m.droppedTotal,
		m.websocketConnection,
		m.rooms,
		m.runningTimers,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveTransition counts an applied or rejected transition.
func (m *Metrics) ObserveTransition(op string, err error) {
	if err != nil {
		m.rejectedTotal.WithLabelValues(op).Inc()
		return
	}
	m.transitionsTotal.WithLabelValues(op).Inc()
}

// Publish counts a broadcast. It lets Metrics sit in a publisher fan-out.
func (m *Metrics) Publish(_ string, msg protocol.Message) {
	m.broadcastsTotal.WithLabelValues(string(msg.Type())).Inc()
}

// ObserveDrop counts a broadcast that a slow subscriber missed.
func (m *Metrics) ObserveDrop(_ string, msg protocol.Message) {
	m.droppedTotal.WithLabelValues(string(msg.Type())).Inc()
}

// SetConnections sets the WebSocket connections gauge.
func (m *Metrics) SetConnections(n int) {
	m.websocketConnection.Set(float64(n))
}

// SetRooms sets the rooms gauge.
func (m *Metrics) SetRooms(n int) {
	m.rooms.Set(float64(n))
}

// SetRunningTimers sets the running timers gauge.
func (m *Metrics) SetRunningTimers(n int) {
	m.runningTimers.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
