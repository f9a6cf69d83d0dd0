package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "higherself_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "higherself_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Provider metrics
	providerAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "higherself_provider_attempts_total",
			Help: "Total number of completion attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	completionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "higherself_completion_duration_seconds",
			Help:    "End-to-end completion duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Session metrics
	sessionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "higherself_sessions_total",
			Help: "Number of stored chat sessions",
		},
	)

	messagesAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "higherself_messages_appended_total",
			Help: "Total number of messages appended to sessions",
		},
		[]string{"role"},
	)

	initMetricsOnce sync.Once
)

// InitMetrics registers all metrics with the default registry.
// Safe to call more than once.
func InitMetrics() {
	initMetricsOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			providerAttemptsTotal,
			completionDuration,
			sessionsTotal,
			messagesAppendedTotal,
		)
	})
}

// MetricsHandler returns the Prometheus exposition handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request with its status and duration.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProviderAttempt records a single completion attempt outcome.
// Outcome is "success" or an error code.
func RecordProviderAttempt(provider, outcome string) {
	providerAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordCompletionDuration records the duration of a full completion call.
func RecordCompletionDuration(provider string, duration time.Duration) {
	completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// SetSessionCount updates the stored session gauge.
func SetSessionCount(n int) {
	sessionsTotal.Set(float64(n))
}

// RecordMessageAppended counts a message appended to a session log.
func RecordMessageAppended(role string) {
	messagesAppendedTotal.WithLabelValues(role).Inc()
}
