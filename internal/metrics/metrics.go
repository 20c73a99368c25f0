package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasteroute_http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "wasteroute_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the rate limiter
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasteroute_rate_limited_total", Help: "Requests rejected with 429."},
		[]string{"path"},
	)

	// OptimizeRuns counts optimizer runs by algorithm and outcome (ok, truncated, error)
	OptimizeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasteroute_optimize_runs_total", Help: "Optimizer runs by algorithm and outcome."},
		[]string{"algorithm", "outcome"},
	)
	// OptimizeDuration records wall time of a single strategy run
	OptimizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "wasteroute_optimize_duration_seconds", Help: "Optimizer run duration in seconds.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2, 5}},
		[]string{"algorithm"},
	)
	// RouteDistance records the total distance of built routes
	RouteDistance = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "wasteroute_route_distance_km", Help: "Total distance of built routes in km.", Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250}},
		[]string{"algorithm"},
	)
	// TwoOptTruncated counts two-opt runs cut short by their deadline
	TwoOptTruncated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "wasteroute_twoopt_truncated_total", Help: "Two-opt refinements stopped by deadline."},
	)
	// RouteTransitions counts accepted route status changes
	RouteTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasteroute_route_status_transitions_total", Help: "Route status transitions by target status."},
		[]string{"status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasteroute_webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "wasteroute_webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration, RateLimited)
		Registry.MustRegister(OptimizeRuns, OptimizeDuration, RouteDistance, TwoOptTruncated, RouteTransitions)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

var regOnce sync.Once
