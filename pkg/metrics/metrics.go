// Package metrics defines the Prometheus metric collectors used across the
// search service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	ChannelLatency       *prometheus.HistogramVec
	ChannelCandidates    *prometheus.HistogramVec
	UnknownTermsTotal    *prometheus.CounterVec
	PostingBytesTotal    *prometheus.CounterVec
	PostingReadErrors    *prometheus.CounterVec
	MissingTitlesTotal   prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Passing nil
// registers with the global default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by mode and outcome (ok, zero_result, error).",
			},
			[]string{"mode", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "End-to-end search latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"mode"},
		),
		ChannelLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channel_scoring_seconds",
				Help:    "Time spent scoring one channel for one query.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"channel"},
		),
		ChannelCandidates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channel_scored_documents",
				Help:    "Number of documents accumulated by one channel for one query.",
				Buckets: prometheus.ExponentialBuckets(1, 10, 8),
			},
			[]string{"channel"},
		),
		UnknownTermsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_unknown_terms_total",
				Help: "Query terms skipped because the channel vocabulary lacks them.",
			},
			[]string{"channel"},
		),
		PostingBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posting_bytes_read_total",
				Help: "Posting list bytes fetched from blob storage.",
			},
			[]string{"channel"},
		),
		PostingReadErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posting_read_errors_total",
				Help: "Posting fetches that failed or returned malformed data.",
			},
			[]string{"channel"},
		),
		MissingTitlesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "missing_titles_total",
				Help: "Ranked documents dropped because no title is known.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.ChannelLatency,
		m.ChannelCandidates,
		m.UnknownTermsTotal,
		m.PostingBytesTotal,
		m.PostingReadErrors,
		m.MissingTitlesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
