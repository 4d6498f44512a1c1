package metrics

import (
	"net/http"

	"iot-telemetry/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure reasons used as the "reason" label
const (
	ReasonValidation = "validation"
	ReasonStorage    = "storage"
)

// Metrics holds the per-protocol comparison collectors on a private registry.
// The Observe methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	ReadingsIngested *prometheus.CounterVec
	IngestFailures   *prometheus.CounterVec
	ReportedLatency  *prometheus.HistogramVec
	MessagesDropped  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReadingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_readings_ingested_total",
			Help: "Readings persisted, by ingress protocol",
		}, []string{"protocol"}),
		IngestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_ingest_failures_total",
			Help: "Rejected or unpersisted readings, by protocol and reason",
		}, []string{"protocol", "reason"}),
		ReportedLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telemetry_reported_latency_ms",
			Help:    "Latency reported with each persisted reading, in milliseconds",
			Buckets: []float64{1, 2.5, 5, 7.5, 10, 15, 20, 30, 45, 60, 100, 250},
		}, []string{"protocol"}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_messages_dropped_total",
			Help: "MQTT messages dropped because they could not be decoded or stored",
		}),
	}

	m.registry.MustRegister(
		m.ReadingsIngested,
		m.IngestFailures,
		m.ReportedLatency,
		m.MessagesDropped,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveIngested records a persisted reading
func (m *Metrics) ObserveIngested(r domain.Reading) {
	if m == nil {
		return
	}
	p := string(r.Protocol)
	m.ReadingsIngested.WithLabelValues(p).Inc()
	m.ReportedLatency.WithLabelValues(p).Observe(r.LatencyMs)
}

// ObserveFailure records a rejected reading
func (m *Metrics) ObserveFailure(p domain.Protocol, reason string) {
	if m == nil {
		return
	}
	m.IngestFailures.WithLabelValues(string(p), reason).Inc()
}

// ObserveDropped records a dropped broker message
func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.MessagesDropped.Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
