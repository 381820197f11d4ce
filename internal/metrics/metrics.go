package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanstalker_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beanstalker_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	pushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanstalker_push_deliveries_total",
			Help: "Push dispatch attempts by vendor and result",
		},
		[]string{"vendor", "result"},
	)

	subscriptionsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanstalker_push_subscriptions_pruned_total",
			Help: "Subscriptions deleted after terminal delivery failures",
		},
		[]string{"outcome"},
	)

	verifierDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beanstalker_verifier_decisions_total",
			Help: "Ownership verifier results (shown, mismatch, dropped, duplicate)",
		},
		[]string{"decision"},
	)

	fallbackNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beanstalker_fallback_notifications_total",
			Help: "Local notifications synthesized by the polling fallback",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPushDelivery records one dispatch attempt result for a vendor.
func RecordPushDelivery(vendor, result string) {
	pushDeliveries.WithLabelValues(vendor, result).Inc()
}

// RecordSubscriptionPruned records a subscription deleted for the outcome.
func RecordSubscriptionPruned(outcome string) {
	subscriptionsPruned.WithLabelValues(outcome).Inc()
}

// RecordVerifierDecision records an ownership-verifier outcome.
func RecordVerifierDecision(decision string) {
	verifierDecisions.WithLabelValues(decision).Inc()
}

// RecordFallbackNotification records one synthesized fallback notification.
func RecordFallbackNotification() {
	fallbackNotifications.Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
