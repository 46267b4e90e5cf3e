package analytics

import (
	"context"
	"encoding/json"
	"testing"
)

func encodeEvent(t *testing.T, event any) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return data
}

func TestHandleEventMine(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)
	ctx := context.Background()

	events := []MineEvent{
		{Type: EventCacheMiss, Dataset: "groceries", Params: "s=0.5;c=0.6;l=0", ItemsetCount: 5, RuleCount: 4, LatencyMs: 120},
		{Type: EventCacheHit, Dataset: "groceries", Params: "s=0.5;c=0.6;l=0", ItemsetCount: 5, RuleCount: 4, LatencyMs: 2, CacheHit: true},
		{Type: EventCacheMiss, Dataset: "retail", Params: "s=0.9;c=0.9;l=0", ItemsetCount: 0, LatencyMs: 58},
	}
	for _, event := range events {
		if err := handle(ctx, nil, encodeEvent(t, event)); err != nil {
			t.Fatalf("handle event: %v", err)
		}
	}

	stats := agg.Stats()
	if stats.TotalRuns != 3 {
		t.Errorf("TotalRuns = %d, want 3", stats.TotalRuns)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 2 {
		t.Errorf("cache hits/misses = %d/%d, want 1/2", stats.CacheHits, stats.CacheMisses)
	}
	if stats.EmptyRuns != 1 {
		t.Errorf("EmptyRuns = %d, want 1", stats.EmptyRuns)
	}
	if stats.AvgLatencyMs != 60 {
		t.Errorf("AvgLatencyMs = %v, want 60", stats.AvgLatencyMs)
	}
	if stats.P50LatencyMs != 58 {
		t.Errorf("P50LatencyMs = %d, want 58", stats.P50LatencyMs)
	}
	if stats.P95LatencyMs != 120 || stats.P99LatencyMs != 120 {
		t.Errorf("P95/P99 = %d/%d, want 120/120", stats.P95LatencyMs, stats.P99LatencyMs)
	}
	if len(stats.TopDatasets) != 2 || stats.TopDatasets[0].Dataset != "groceries" || stats.TopDatasets[0].Count != 2 {
		t.Errorf("TopDatasets = %+v, want groceries first with 2 runs", stats.TopDatasets)
	}
	if len(stats.TopParams) != 2 || stats.TopParams[0].Params != "s=0.5;c=0.6;l=0" {
		t.Errorf("TopParams = %+v, want s=0.5;c=0.6;l=0 first", stats.TopParams)
	}
	if stats.RunsPerMinute <= 0 {
		t.Errorf("RunsPerMinute = %v, want > 0", stats.RunsPerMinute)
	}
}

func TestHandleEventIngest(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)
	ctx := context.Background()

	events := []IngestEvent{
		{Type: EventIngest, Dataset: "groceries", Records: 40, Dropped: 2},
		{Type: EventIngest, Dataset: "retail", Records: 10},
	}
	for _, event := range events {
		if err := handle(ctx, nil, encodeEvent(t, event)); err != nil {
			t.Fatalf("handle event: %v", err)
		}
	}

	stats := agg.Stats()
	if stats.TotalIngested != 50 {
		t.Errorf("TotalIngested = %d, want 50", stats.TotalIngested)
	}
	if stats.TotalRuns != 0 {
		t.Errorf("TotalRuns = %d, want 0", stats.TotalRuns)
	}
}

func TestHandleEventBadJSON(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)

	if err := handle(context.Background(), nil, []byte("{not json")); err != nil {
		t.Fatalf("bad JSON should be skipped, got error: %v", err)
	}
	if stats := agg.Stats(); stats.TotalRuns != 0 || stats.TotalIngested != 0 {
		t.Errorf("bad JSON must not change counters, got %+v", stats)
	}
}

func TestHandleEventUnknownType(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)

	if err := handle(context.Background(), nil, []byte(`{"type":"heartbeat"}`)); err != nil {
		t.Fatalf("unknown type should be skipped, got error: %v", err)
	}
	if stats := agg.Stats(); stats.TotalRuns != 0 || stats.TotalIngested != 0 {
		t.Errorf("unknown type must not change counters, got %+v", stats)
	}
}

func TestTopDatasetsLimitAndTies(t *testing.T) {
	agg := NewAggregator(nil)
	runs := []MineEvent{
		{Type: EventMine, Dataset: "beta", ItemsetCount: 1},
		{Type: EventMine, Dataset: "alpha", ItemsetCount: 1},
		{Type: EventMine, Dataset: "gamma", ItemsetCount: 1},
		{Type: EventMine, Dataset: "gamma", ItemsetCount: 1},
	}
	for _, event := range runs {
		agg.recordMineEvent(event)
	}

	top := agg.TopDatasets(10)
	want := []DatasetCount{
		{Dataset: "gamma", Count: 2},
		{Dataset: "alpha", Count: 1},
		{Dataset: "beta", Count: 1},
	}
	if len(top) != len(want) {
		t.Fatalf("got %d datasets, want %d", len(top), len(want))
	}
	for i := range want {
		if top[i] != want[i] {
			t.Errorf("TopDatasets[%d] = %+v, want %+v", i, top[i], want[i])
		}
	}

	if limited := agg.TopDatasets(1); len(limited) != 1 || limited[0].Dataset != "gamma" {
		t.Errorf("TopDatasets(1) = %+v, want only gamma", limited)
	}
}

func TestRestore(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Restore(AggregatedStats{
		TotalRuns:     42,
		TotalIngested: 9000,
		CacheHits:     30,
		CacheMisses:   12,
		EmptyRuns:     3,
		TopDatasets:   []DatasetCount{{Dataset: "groceries", Count: 40}, {Dataset: "retail", Count: 2}},
		TopParams:     []ParamsCount{{Params: "s=0.5;c=0.6;l=0", Count: 42}},
	})

	stats := agg.Stats()
	if stats.TotalRuns != 42 || stats.TotalIngested != 9000 {
		t.Errorf("totals = %d/%d, want 42/9000", stats.TotalRuns, stats.TotalIngested)
	}
	if stats.CacheHits != 30 || stats.CacheMisses != 12 || stats.EmptyRuns != 3 {
		t.Errorf("counters = %d/%d/%d, want 30/12/3", stats.CacheHits, stats.CacheMisses, stats.EmptyRuns)
	}
	if len(stats.TopDatasets) != 2 || stats.TopDatasets[0].Dataset != "groceries" || stats.TopDatasets[0].Count != 40 {
		t.Errorf("TopDatasets = %+v, want restored rankings", stats.TopDatasets)
	}
}

func TestLatencyWindowBounded(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 0; i < maxLatencySamples+100; i++ {
		agg.recordMineEvent(MineEvent{Type: EventMine, LatencyMs: int64(i)})
	}

	agg.mu.RLock()
	defer agg.mu.RUnlock()
	if len(agg.latencies) > maxLatencySamples {
		t.Fatalf("latency window grew to %d, cap is %d", len(agg.latencies), maxLatencySamples)
	}
	if agg.latencies[0] != int64(maxLatencySamples/2) {
		t.Errorf("oldest retained latency = %d, want %d", agg.latencies[0], maxLatencySamples/2)
	}
}
