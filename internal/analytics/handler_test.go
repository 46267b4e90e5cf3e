package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeSnapshots struct {
	snapshots []AggregatedStats
	err       error
	lastLimit int
}

func (f *fakeSnapshots) ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots, nil
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator(nil)
	agg.recordMineEvent(MineEvent{Type: EventMine, Dataset: "groceries", ItemsetCount: 3, LatencyMs: 10})
	h := NewHandler(agg, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var stats AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalRuns != 1 {
		t.Errorf("TotalRuns = %d, want 1", stats.TotalRuns)
	}
	if len(stats.TopDatasets) != 1 || stats.TopDatasets[0].Dataset != "groceries" {
		t.Errorf("TopDatasets = %+v, want groceries", stats.TopDatasets)
	}
}

func TestHandlerTopDatasets(t *testing.T) {
	agg := NewAggregator(nil)
	agg.recordMineEvent(MineEvent{Type: EventMine, Dataset: "groceries", ItemsetCount: 1})
	agg.recordMineEvent(MineEvent{Type: EventMine, Dataset: "groceries", ItemsetCount: 1})
	agg.recordMineEvent(MineEvent{Type: EventMine, Dataset: "retail", ItemsetCount: 1})
	h := NewHandler(agg, nil)

	rec := httptest.NewRecorder()
	h.TopDatasets(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/top-datasets?limit=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		TopDatasets []DatasetCount `json:"top_datasets"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.TopDatasets) != 1 || body.TopDatasets[0].Dataset != "groceries" || body.TopDatasets[0].Count != 2 {
		t.Errorf("top_datasets = %+v, want groceries with 2 runs", body.TopDatasets)
	}
}

func TestHandlerTopDatasetsBadLimit(t *testing.T) {
	agg := NewAggregator(nil)
	h := NewHandler(agg, nil)

	rec := httptest.NewRecorder()
	h.TopDatasets(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/top-datasets?limit=nope", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with fallback limit", rec.Code)
	}
	var body struct {
		TopDatasets []DatasetCount `json:"top_datasets"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.TopDatasets == nil {
		t.Error("top_datasets should be an empty array, not null")
	}
}

func TestHandlerSnapshots(t *testing.T) {
	src := &fakeSnapshots{snapshots: []AggregatedStats{{TotalRuns: 2}, {TotalRuns: 1}}}
	h := NewHandler(NewAggregator(nil), src)

	rec := httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if src.lastLimit != 3 {
		t.Errorf("limit passed to store = %d, want 3", src.lastLimit)
	}
	var body struct {
		Snapshots []AggregatedStats `json:"snapshots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Snapshots) != 2 || body.Snapshots[0].TotalRuns != 2 {
		t.Errorf("snapshots = %+v, want newest first", body.Snapshots)
	}
}

func TestHandlerSnapshotsDefaultLimit(t *testing.T) {
	src := &fakeSnapshots{}
	h := NewHandler(NewAggregator(nil), src)

	rec := httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if src.lastLimit != 24 {
		t.Errorf("default limit = %d, want 24", src.lastLimit)
	}
}

func TestHandlerSnapshotsUnconfigured(t *testing.T) {
	h := NewHandler(NewAggregator(nil), nil)

	rec := httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestHandlerSnapshotsStoreError(t *testing.T) {
	src := &fakeSnapshots{err: errors.New("db down")}
	h := NewHandler(NewAggregator(nil), src)

	rec := httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
