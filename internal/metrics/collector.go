// Package metrics provides the ambient Prometheus metrics surface and the
// bounded in-memory analytics store the dashboard reads from. The two are
// deliberately separate: Collector is ops-facing (scraped, unbounded
// counters) while AnalyticsStore (analytics.go) is product-facing (bounded,
// snapshot-then-aggregate, exposed through /dashboard/api/*).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the process-wide Prometheus instruments.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	upstreamTokensUsed      *prometheus.CounterVec
	upstreamCostUSD         *prometheus.CounterVec

	fallbacksTotal  *prometheus.CounterVec
	hfGateTripsTotal prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers every instrument under namespace and returns the
// Collector wrapping them.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served by the gateway.",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of calls made to an upstream deployment.",
		},
		[]string{"upstream", "model", "tier", "status"},
	)

	c.upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream call duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"upstream", "model"},
	)

	c.upstreamTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_tokens_total",
			Help:      "Total tokens accounted for by upstream calls.",
		},
		[]string{"upstream", "model", "kind"}, // kind: prompt, completion
	)

	c.upstreamCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_estimated_cost_usd_total",
			Help:      "Estimated USD cost of upstream calls, from the static per-million-token rate table.",
		},
		[]string{"upstream"},
	)

	c.fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of times the pipeline fell back from one upstream to another.",
		},
		[]string{"from", "to"},
	)

	c.hfGateTripsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hf_gate_trips_total",
			Help:      "Total number of times the HF-credit gate was tripped by an exhaustion signal.",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one inbound HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpstreamRequest records one completed upstream call.
func (c *Collector) RecordUpstreamRequest(upstream, model, tier, status string, duration time.Duration, promptTokens, completionTokens int, costUSD float64) {
	c.upstreamRequestsTotal.WithLabelValues(upstream, model, tier, status).Inc()
	c.upstreamRequestDuration.WithLabelValues(upstream, model).Observe(duration.Seconds())
	c.upstreamTokensUsed.WithLabelValues(upstream, model, "prompt").Add(float64(promptTokens))
	c.upstreamTokensUsed.WithLabelValues(upstream, model, "completion").Add(float64(completionTokens))
	c.upstreamCostUSD.WithLabelValues(upstream).Add(costUSD)
}

// RecordFallback records one fallback transition from one upstream to the
// next candidate in the plan.
func (c *Collector) RecordFallback(from, to string) {
	c.fallbacksTotal.WithLabelValues(from, to).Inc()
}

// RecordHFGateTrip records one HF-credit gate exhaustion signal.
func (c *Collector) RecordHFGateTrip() {
	c.hfGateTripsTotal.Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
