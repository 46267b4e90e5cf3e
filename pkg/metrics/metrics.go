// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal         *prometheus.CounterVec
	HTTPRequestDuration       *prometheus.HistogramVec
	HTTPRequestsInFlight      prometheus.Gauge
	MiningRunsTotal           *prometheus.CounterVec
	MiningRunDuration         *prometheus.HistogramVec
	CandidatesGeneratedTotal  prometheus.Counter
	CandidatesPrunedTotal     prometheus.Counter
	FrequentItemsetsCount     prometheus.Histogram
	RulesCount                prometheus.Histogram
	CacheHitsTotal            prometheus.Counter
	CacheMissesTotal          prometheus.Counter
	TransactionsIngestedTotal prometheus.Counter
	KafkaPublishesTotal       *prometheus.CounterVec
	DatasetSize               *prometheus.GaugeVec
	CircuitBreakerState       *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
		MiningRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mining_runs_total",
				Help: "Total mining runs by outcome (ok, empty, error).",
			},
			[]string{"outcome"},
		),
		MiningRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mining_run_duration_seconds",
				Help:    "Mining run latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"cache_status"},
		),
		CandidatesGeneratedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mining_candidates_generated_total",
				Help: "Total candidate itemsets generated across all runs.",
			},
		),
		CandidatesPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mining_candidates_pruned_total",
				Help: "Total candidate itemsets discarded by subset pruning.",
			},
		),
		FrequentItemsetsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mining_frequent_itemsets_count",
				Help:    "Number of frequent itemsets found per run.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		RulesCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mining_rules_count",
				Help:    "Number of association rules produced per run.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		TransactionsIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "transactions_ingested_total",
				Help: "Total transaction records accepted by ingestion.",
			},
		),
		KafkaPublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_publishes_total",
				Help: "Total Kafka publish attempts by topic and status.",
			},
			[]string{"topic", "status"},
		),
		DatasetSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dataset_transaction_count",
				Help: "Number of transaction records per dataset.",
			},
			[]string{"dataset"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.MiningRunsTotal,
		m.MiningRunDuration,
		m.CandidatesGeneratedTotal,
		m.CandidatesPrunedTotal,
		m.FrequentItemsetsCount,
		m.RulesCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.TransactionsIngestedTotal,
		m.KafkaPublishesTotal,
		m.DatasetSize,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
