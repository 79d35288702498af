// Package metrics holds the Prometheus collectors for the gateway and the
// list-items outbox.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "listio"

// Metrics owns a private registry so tests and multiple app instances do not
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec

	outboxDepth     prometheus.Gauge
	outboxDead      prometheus.Gauge
	outboxProcessed *prometheus.CounterVec
	outboxFailures  prometheus.Counter
	outboxDeadTotal prometheus.Counter

	historyEvents prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Requests sent to the backend, by method and status class.",
		}, []string{"method", "status"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pending_entries",
			Help:      "Entries waiting in the list-items outbox.",
		}),
		outboxDead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dead_entries",
			Help:      "Entries parked in the dead-letter set.",
		}),
		outboxProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "processed_total",
			Help:      "Outbox entries replayed successfully, by operation.",
		}, []string{"op"}),
		outboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "failures_total",
			Help:      "Failed replay attempts of the outbox head.",
		}),
		outboxDeadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dead_lettered_total",
			Help:      "Entries moved to the dead-letter set.",
		}),
		historyEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "events",
			Help:      "Events currently held in the history log.",
		}),
	}

	reg.MustRegister(
		m.gatewayRequests,
		m.gatewayDuration,
		m.outboxDepth,
		m.outboxDead,
		m.outboxProcessed,
		m.outboxFailures,
		m.outboxDeadTotal,
		m.historyEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one gateway round trip. A zero status means the
// request never produced a response.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	m.gatewayRequests.WithLabelValues(method, StatusClass(status)).Inc()
	m.gatewayDuration.WithLabelValues(method).Observe(d.Seconds())
}

// StatusClass maps an HTTP status to "2xx".."5xx", or "error" for transport failures.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

func (m *Metrics) SetOutboxDepth(pending, dead int) {
	m.outboxDepth.Set(float64(pending))
	m.outboxDead.Set(float64(dead))
}

func (m *Metrics) OutboxProcessed(op string) {
	m.outboxProcessed.WithLabelValues(op).Inc()
}

func (m *Metrics) OutboxFailed() {
	m.outboxFailures.Inc()
}

func (m *Metrics) OutboxDeadLettered() {
	m.outboxDeadTotal.Inc()
}

func (m *Metrics) SetHistoryEvents(n int) {
	m.historyEvents.Set(float64(n))
}
