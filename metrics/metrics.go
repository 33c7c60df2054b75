// Package metrics encapsulates the Prometheus instrumentation shared by
// every endpoint, the rate-limiting substrate, and the memory monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec

	// ActiveConnections tracks open connections per endpoint.
	ActiveConnections *prometheus.GaugeVec
	// ConnectionsTotal counts accepted connections per endpoint, admission outcome.
	ConnectionsTotal *prometheus.CounterVec
	// BucketAvailableTokens samples each named TokenBucket's available tokens.
	BucketAvailableTokens *prometheus.GaugeVec
	// BucketQueueDepth samples each named TokenBucket's queued waiter count.
	BucketQueueDepth *prometheus.GaugeVec

	// MemoryRSSBytes is the process RSS as last sampled by the memory monitor.
	MemoryRSSBytes prometheus.Gauge
	// MemoryHeapBytes is Go runtime heap, stack, span and cache memory as last
	// sampled; memory allocated outside the Go runtime is not included.
	MemoryHeapBytes prometheus.Gauge
	// MemoryOverLimit is 1 while the memory monitor considers the process over its bound.
	MemoryOverLimit prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coregate_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coregate_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coregate_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coregate_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coregate_rate_limit_hits_total",
				Help: "Total number of rate limit hits by limiter name",
			},
			[]string{"limiter"},
		),
		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coregate_active_connections",
				Help: "Number of currently open connections by endpoint",
			},
			[]string{"endpoint"},
		),
		ConnectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coregate_connections_total",
				Help: "Total number of accepted connections by endpoint and admission outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		BucketAvailableTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coregate_bucket_available_tokens",
				Help: "Tokens currently available in a named token bucket",
			},
			[]string{"limiter", "bucket"},
		),
		BucketQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coregate_bucket_queue_depth",
				Help: "Number of waiters currently queued on a named token bucket",
			},
			[]string{"limiter", "bucket"},
		),
		MemoryRSSBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coregate_memory_rss_bytes",
			Help: "Process resident set size as last sampled by the memory monitor",
		}),
		MemoryHeapBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coregate_memory_heap_bytes",
			Help: "Go runtime heap, stack, span and cache memory as last sampled by the memory monitor",
		}),
		MemoryOverLimit: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coregate_memory_over_limit",
			Help: "1 while the memory monitor considers the process over its configured bound",
		}),
	}

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying Prometheus registry so other components
// (circuit breakers, application-specific collectors) can register their
// own metrics alongside the core's.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
