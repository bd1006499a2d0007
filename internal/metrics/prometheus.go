package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector on a private registry.
type PrometheusCollector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	aiRequests   *prometheus.CounterVec
	aiLatency    *prometheus.HistogramVec
	circuitState *prometheus.GaugeVec

	jobsProcessed *prometheus.CounterVec
}

// NewPrometheusCollector creates the collector and registers its metrics
// together with the Go runtime and process collectors.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	pc := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		aiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_requests_total",
				Help:      "Total number of AI delegate calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		aiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_request_duration_seconds",
				Help:      "AI delegate latency by operation",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 20, 30},
			},
			[]string{"operation"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ai_circuit_state",
				Help:      "Current circuit breaker state per AI operation (0=closed, 1=open, 2=half-open)",
			},
			[]string{"operation"},
		),
		jobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_processed_total",
				Help:      "Total number of background jobs by type and final status",
			},
			[]string{"type", "status"},
		),
	}

	pc.registry.MustRegister(
		pc.httpRequests,
		pc.httpLatency,
		pc.aiRequests,
		pc.aiLatency,
		pc.circuitState,
		pc.jobsProcessed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return pc
}

// Registry exposes the underlying registry, mainly for tests.
func (pc *PrometheusCollector) Registry() *prometheus.Registry {
	return pc.registry
}

// Handler serves the registry in the Prometheus text format.
func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}

func (pc *PrometheusCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	pc.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	pc.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordAIRequest(operation string, outcome Outcome, duration time.Duration) {
	pc.aiRequests.WithLabelValues(operation, string(outcome)).Inc()
	pc.aiLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordCircuitState(operation string, state CircuitState) {
	pc.circuitState.WithLabelValues(operation).Set(float64(state))
}

func (pc *PrometheusCollector) RecordJob(jobType, status string) {
	pc.jobsProcessed.WithLabelValues(jobType, status).Inc()
}

var _ Collector = (*PrometheusCollector)(nil)
