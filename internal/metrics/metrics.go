package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks the number of outbound API calls to SureDone.
	SureDoneRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suredone_api_requests_total",
			Help: "Total number of SureDone API requests made (by endpoint, method and outcome).",
		},
		[]string{"endpoint", "method", "outcome"},
	)

	// Measures duration of API requests to SureDone.
	SureDoneRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "suredone_api_request_duration_seconds",
			Help:    "Duration of SureDone API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"endpoint", "method"},
	)

	// Counts token refresh attempts triggered by Invalid Token responses.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "suredone_token_refresh_total",
			Help: "Token refresh attempts by result (ok | failed | unavailable).",
		},
		[]string{"result"},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks export report jobs by result.
	ExportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_jobs_total",
			Help: "Order-export report jobs processed (by result).",
		},
		[]string{"result"}, // ok | error
	)

	// Tracks cache hits and misses for account options / admin credentials.
	OptionsCacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "options_cache_access_total",
			Help: "Number of cache hits/misses in the account-options cache.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_errors_total",
			Help: "Total errors by component and kind.",
		},
		[]string{"component", "kind"},
	)
)

// IncError increments the aggregated error counter.
func IncError(component, kind string) {
	ErrorsTotal.WithLabelValues(component, kind).Inc()
}

// IncNATSMessage records a publish outcome for a subject.
func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

// ObserveDuration records elapsed time since start on a histogram.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}
