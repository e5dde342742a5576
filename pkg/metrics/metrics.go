// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ModerationChecks counts gate outcomes (allowed, blocked, skipped, fail_open).
	ModerationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_checks_total",
			Help: "Moderation gate outcomes",
		},
		[]string{"provider", "outcome"},
	)

	// ModerationDuration tracks moderation round-trip latency.
	ModerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moderation_check_duration_seconds",
			Help:    "Moderation check duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"provider"},
	)

	// UpstreamStreamDuration tracks relayed upstream stream duration.
	UpstreamStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_stream_duration_seconds",
			Help:    "Upstream streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"status"},
	)

	// UpstreamBytesTotal tracks bytes relayed from upstream to clients.
	UpstreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_relayed_bytes_total",
			Help: "Total bytes relayed from the upstream chat API",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// DecisionLogFailures counts decision records that could not be written.
	DecisionLogFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_log_failures_total",
			Help: "Decision records that failed to persist",
		},
		[]string{"sink"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordModeration records the outcome and latency of a moderation check.
func RecordModeration(provider, outcome string, duration float64) {
	ModerationChecks.WithLabelValues(provider, outcome).Inc()
	ModerationDuration.WithLabelValues(provider).Observe(duration)
}

// RecordUpstreamStream records metrics for a relayed upstream stream.
func RecordUpstreamStream(status string, duration float64, bytes int64) {
	UpstreamStreamDuration.WithLabelValues(status).Observe(duration)
	UpstreamBytesTotal.Add(float64(bytes))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
