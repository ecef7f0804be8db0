// Package metrics provides Prometheus instrumentation for the fraud pipeline.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fraudgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// VerdictsTotal counts final gateway verdicts by outcome.
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "verdicts_total",
			Help:      "Total fraud verdicts issued by outcome.",
		},
		[]string{"verdict"},
	)

	// SourceFailuresTotal counts decision source degradations by source and reason.
	SourceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "source_failures_total",
			Help:      "Decision source failures resolved via fallback, by source and reason.",
		},
		[]string{"source", "reason"},
	)

	// HybridScore observes the distribution of published hybrid scores.
	HybridScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fraudgate",
			Name:      "hybrid_score",
			Help:      "Distribution of hybrid fraud scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// RuleEvaluationsTotal counts rule engine evaluations by risk level.
	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "rule_evaluations_total",
			Help:      "Total rule engine evaluations by risk level.",
		},
		[]string{"risk_level"},
	)

	// StoreErrorsTotal counts velocity/pattern store failures by operation.
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "store_errors_total",
			Help:      "Velocity/pattern store failures by operation.",
		},
		[]string{"op"},
	)

	// AlertDeliveriesTotal counts high-risk alert deliveries by result.
	AlertDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fraudgate",
			Name:      "alert_deliveries_total",
			Help:      "Total high-risk alert deliveries by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected verdict stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fraudgate",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		VerdictsTotal,
		SourceFailuresTotal,
		HybridScore,
		RuleEvaluationsTotal,
		StoreErrorsTotal,
		AlertDeliveriesTotal,
		ActiveWebSocketClients,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
