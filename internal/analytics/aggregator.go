package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
)

// maxLatencySamples bounds the in-memory latency window. Once it fills,
// the oldest half is discarded.
const maxLatencySamples = 50000

type AggregatedStats struct {
	TotalRuns     int64          `json:"total_runs"`
	TotalIngested int64          `json:"total_ingested"`
	CacheHits     int64          `json:"cache_hits"`
	CacheMisses   int64          `json:"cache_misses"`
	EmptyRuns     int64          `json:"empty_runs"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	P50LatencyMs  int64          `json:"p50_latency_ms"`
	P95LatencyMs  int64          `json:"p95_latency_ms"`
	P99LatencyMs  int64          `json:"p99_latency_ms"`
	TopDatasets   []DatasetCount `json:"top_datasets"`
	TopParams     []ParamsCount  `json:"top_params"`
	RunsPerMinute float64        `json:"runs_per_minute"`
}

type DatasetCount struct {
	Dataset string `json:"dataset"`
	Count   int64  `json:"count"`
}

type ParamsCount struct {
	Params string `json:"params"`
	Count  int64  `json:"count"`
}

type Aggregator struct {
	mu            sync.RWMutex
	totalRuns     atomic.Int64
	totalIngested atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	emptyRuns     atomic.Int64
	latencies     []int64
	datasetRuns   map[string]int64
	paramsRuns    map[string]int64
	startTime     time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:   make([]int64, 0, 10000),
		datasetRuns: make(map[string]int64),
		paramsRuns:  make(map[string]int64),
		startTime:   time.Now(),
		consumer:    consumer,
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

type eventEnvelope struct {
	Type EventType `json:"type"`
}

// HandleEvent returns the Kafka handler that feeds the aggregator. Mining
// and ingestion events share one topic and are told apart by their type
// field. Malformed events are logged and skipped, never retried.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[eventEnvelope](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventMine, EventCacheHit, EventCacheMiss, EventEmptyResult:
			event, err := kafka.DecodeJSON[MineEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode mine event", "error", err)
				return nil
			}
			agg.recordMineEvent(event)
		case EventIngest:
			event, err := kafka.DecodeJSON[IngestEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode ingest event", "error", err)
				return nil
			}
			agg.recordIngestEvent(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", string(env.Type))
		}
		return nil
	}
}

func (a *Aggregator) recordMineEvent(event MineEvent) {
	a.totalRuns.Add(1)

	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}

	if event.ItemsetCount == 0 {
		a.emptyRuns.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) >= maxLatencySamples {
		half := len(a.latencies) / 2
		copy(a.latencies, a.latencies[half:])
		a.latencies = a.latencies[:len(a.latencies)-half]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	if event.Dataset != "" {
		a.datasetRuns[event.Dataset]++
	}
	if event.Params != "" {
		a.paramsRuns[event.Params]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordIngestEvent(event IngestEvent) {
	a.totalIngested.Add(int64(event.Records))
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalRuns:     a.totalRuns.Load(),
		TotalIngested: a.totalIngested.Load(),
		CacheHits:     a.cacheHits.Load(),
		CacheMisses:   a.cacheMisses.Load(),
		EmptyRuns:     a.emptyRuns.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopDatasets = topDatasets(a.datasetRuns, 10)
	stats.TopParams = topParams(a.paramsRuns, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.RunsPerMinute = float64(stats.TotalRuns) / elapsed
	}

	return stats
}

// TopDatasets returns the n most mined datasets, ties broken by name.
func (a *Aggregator) TopDatasets(n int) []DatasetCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return topDatasets(a.datasetRuns, n)
}

// Restore seeds the counters from a persisted snapshot. Totals and the
// snapshot's dataset and params rankings carry over; the latency window
// restarts empty.
func (a *Aggregator) Restore(stats AggregatedStats) {
	a.totalRuns.Store(stats.TotalRuns)
	a.totalIngested.Store(stats.TotalIngested)
	a.cacheHits.Store(stats.CacheHits)
	a.cacheMisses.Store(stats.CacheMisses)
	a.emptyRuns.Store(stats.EmptyRuns)

	a.mu.Lock()
	for _, d := range stats.TopDatasets {
		a.datasetRuns[d.Dataset] = d.Count
	}
	for _, p := range stats.TopParams {
		a.paramsRuns[p.Params] = p.Count
	}
	a.mu.Unlock()

	a.logger.Info("aggregator restored from snapshot",
		"total_runs", stats.TotalRuns,
		"total_ingested", stats.TotalIngested,
	)
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topDatasets(counts map[string]int64, n int) []DatasetCount {
	result := make([]DatasetCount, 0, len(counts))
	for dataset, count := range counts {
		result = append(result, DatasetCount{Dataset: dataset, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Dataset < result[j].Dataset
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

func topParams(counts map[string]int64, n int) []ParamsCount {
	result := make([]ParamsCount, 0, len(counts))
	for params, count := range counts {
		result = append(result, ParamsCount{Params: params, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Params < result[j].Params
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}
