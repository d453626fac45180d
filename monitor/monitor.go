// Package monitor implements the Monitor capability the Artifact Service
// reports errors, request outcomes, and publish attempts to.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor is the narrow reporting surface the service package depends on.
type Monitor interface {
	ReportError(err error, op string)
	ObserveRequest(op string, status int, duration time.Duration)
	ObservePublish(ok bool)
}

// PrometheusMonitor is the default Monitor, backed by its own registry so
// multiple instances (e.g. in tests) never collide on process-global metrics.
type PrometheusMonitor struct {
	registry *prometheus.Registry

	errorsTotal      *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	publishAttempts  *prometheus.CounterVec
}

// New creates a PrometheusMonitor with namespace "artifactcore".
func New() *PrometheusMonitor {
	reg := prometheus.NewRegistry()
	m := &PrometheusMonitor{
		registry: reg,
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "artifactcore",
			Name:      "errors_total",
			Help:      "Total number of errors reported by the artifact service, by operation.",
		}, []string{"op"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "artifactcore",
			Name:      "requests_total",
			Help:      "Total number of artifact operations, by operation and HTTP status code.",
		}, []string{"op", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "artifactcore",
			Name:      "request_duration_seconds",
			Help:      "Duration of artifact operations in seconds, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "artifactcore",
			Name:      "event_publish_total",
			Help:      "Total number of artifact-created event publish attempts, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.errorsTotal, m.requestsTotal, m.requestDuration, m.publishAttempts)
	return m
}

// ReportError records an error against the operation that produced it.
// A nil err is ignored.
func (m *PrometheusMonitor) ReportError(err error, op string) {
	if err == nil {
		return
	}
	m.errorsTotal.WithLabelValues(op).Inc()
}

// ObserveRequest records the outcome and latency of one operation.
func (m *PrometheusMonitor) ObserveRequest(op string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(op, statusLabel(status)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObservePublish records whether an artifactCreated publish attempt
// succeeded, without affecting the caller's own return value.
func (m *PrometheusMonitor) ObservePublish(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.publishAttempts.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMonitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

var _ Monitor = (*PrometheusMonitor)(nil)
