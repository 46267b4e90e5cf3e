// Package handler exposes the mining HTTP API: run mining over a dataset,
// inspect dataset statistics, list datasets and past runs, and manage the
// result cache.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/internal/analytics"
	"github.com/smartgrocer/basket-analytics-platform/internal/dataset"
	"github.com/smartgrocer/basket-analytics-platform/internal/miner/audit"
	"github.com/smartgrocer/basket-analytics-platform/internal/miner/cache"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining/stats"
	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
	apperrors "github.com/smartgrocer/basket-analytics-platform/pkg/errors"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
	"github.com/smartgrocer/basket-analytics-platform/pkg/middleware"
	"github.com/smartgrocer/basket-analytics-platform/pkg/tracing"
)

const invalidDatasetMsg = "dataset name must be 1-64 letters, digits, dots, dashes or underscores"

// MiningEngine runs analyses. Implemented by mining.Engine.
type MiningEngine interface {
	Run(ctx context.Context, records []normalizer.Record, params mining.Params) (*mining.Result, error)
	DatasetStats(ctx context.Context, records []normalizer.Record, topN int) (stats.Stats, error)
	DefaultParams() mining.Params
}

// DatasetSource provides dataset snapshots. Implemented by dataset.Store.
type DatasetSource interface {
	Records(name string) ([]normalizer.Record, uint64, error)
	List() []dataset.Info
}

// RunHistory records and lists completed runs. Implemented by audit.Store.
type RunHistory interface {
	RecordRun(ctx context.Context, run audit.Run) error
	RecentRuns(ctx context.Context, dataset string, limit int) ([]audit.Run, error)
}

// MineRequest is the optional JSON body of the mine endpoint. Omitted or
// zero fields fall back to the configured defaults.
type MineRequest struct {
	MinSupport    float64 `json:"min_support"`
	MinConfidence float64 `json:"min_confidence"`
	MaxLen        int     `json:"max_len,omitempty"`
}

// MineResponse wraps a mining result with the request's resolution.
type MineResponse struct {
	Dataset  string        `json:"dataset"`
	Revision uint64        `json:"revision"`
	Params   mining.Params `json:"params"`
	CacheHit bool          `json:"cache_hit"`
	mining.Result
}

// StatsResponse carries dataset statistics without mining output.
type StatsResponse struct {
	Dataset  string      `json:"dataset"`
	Revision uint64      `json:"revision"`
	Stats    stats.Stats `json:"stats"`
}

type Handler struct {
	engine    MiningEngine
	datasets  DatasetSource
	cache     *cache.ResultCache
	history   RunHistory
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds the mining API handler. cache, history, collector and m may be
// nil; the matching features degrade gracefully.
func New(engine MiningEngine, datasets DatasetSource, resultCache *cache.ResultCache, history RunHistory, collector *analytics.Collector, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:    engine,
		datasets:  datasets,
		cache:     resultCache,
		history:   history,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "miner-handler"),
	}
}

func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var rootSpan *tracing.Span
	if tracing.Sampled() {
		ctx, rootSpan = tracing.StartSpan(ctx, "mine-request", middleware.GetRequestID(ctx))
		defer func() {
			rootSpan.End()
			rootSpan.Log()
		}()
	}

	name := r.PathValue("dataset")
	if !dataset.ValidName(name) {
		h.writeError(w, http.StatusBadRequest, invalidDatasetMsg)
		return
	}

	params, err := h.decodeParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, revision, err := h.datasets.Records(name)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	var result *mining.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, name, revision, params, func() (*mining.Result, error) {
			return h.engine.Run(ctx, records, params)
		})
	} else {
		result, err = h.engine.Run(ctx, records, params)
	}
	if err != nil {
		h.observeRun("error", "miss", time.Since(start))
		log.Error("mining run failed", "dataset", name, "error", err)
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			h.writeError(w, status, "mining failed")
		} else {
			h.writeError(w, status, err.Error())
		}
		return
	}

	latency := time.Since(start)
	h.observeRun("ok", cacheStatus(cacheHit), latency)
	if rootSpan != nil {
		rootSpan.SetAttr("dataset", name)
		rootSpan.SetAttr("cache_hit", cacheHit)
	}
	if h.metrics != nil {
		if cacheHit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
			h.metrics.CandidatesGeneratedTotal.Add(float64(result.Summary.CandidatesGenerated))
			h.metrics.CandidatesPrunedTotal.Add(float64(result.Summary.CandidatesPruned))
			h.metrics.FrequentItemsetsCount.Observe(float64(len(result.Itemsets)))
			h.metrics.RulesCount.Observe(float64(len(result.Rules)))
		}
	}

	if h.history != nil && !cacheHit {
		if err := h.history.RecordRun(ctx, audit.Run{
			Dataset:      name,
			Params:       params,
			ItemsetCount: len(result.Itemsets),
			RuleCount:    len(result.Rules),
			Levels:       result.Summary.Levels,
			DurationMs:   result.Summary.DurationMs,
		}); err != nil {
			log.Warn("failed to record mining run", "dataset", name, "error", err)
		}
	}

	latencyMs := latency.Milliseconds()
	log.Info("mining run completed",
		"dataset", name,
		"revision", revision,
		"itemsets", len(result.Itemsets),
		"rules", len(result.Rules),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	if h.collector != nil {
		eventType := analytics.EventCacheMiss
		if cacheHit {
			eventType = analytics.EventCacheHit
		} else if len(result.Itemsets) == 0 {
			eventType = analytics.EventEmptyResult
		}

		h.collector.Track(name, analytics.MineEvent{
			Type:         eventType,
			Dataset:      name,
			Params:       params.Key(),
			ItemsetCount: len(result.Itemsets),
			RuleCount:    len(result.Rules),
			Levels:       result.Summary.Levels,
			LatencyMs:    latencyMs,
			CacheHit:     cacheHit,
			Timestamp:    time.Now().UTC(),
			RequestID:    middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, &MineResponse{
		Dataset:  name,
		Revision: revision,
		Params:   params,
		CacheHit: cacheHit,
		Result:   *result,
	})
}

func (h *Handler) DatasetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	name := r.PathValue("dataset")
	if !dataset.ValidName(name) {
		h.writeError(w, http.StatusBadRequest, invalidDatasetMsg)
		return
	}

	records, revision, err := h.datasets.Records(name)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	topN := queryInt(r, "top", 0)
	result, err := h.engine.DatasetStats(ctx, records, topN)
	if err != nil {
		log.Error("stats computation failed", "dataset", name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "stats computation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, &StatsResponse{
		Dataset:  name,
		Revision: revision,
		Stats:    result,
	})
}

func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"datasets": h.datasets.List()})
}

// ListRuns serves the run history of a dataset. Accepts ?limit=N, default 20.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotImplemented, "run history not configured")
		return
	}

	name := r.PathValue("dataset")
	if !dataset.ValidName(name) {
		h.writeError(w, http.StatusBadRequest, invalidDatasetMsg)
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit > 200 {
		limit = 200
	}

	runs, err := h.history.RecentRuns(r.Context(), name, limit)
	if err != nil {
		h.logger.Error("failed to list mining runs", "dataset", name, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}
	if runs == nil {
		runs = []audit.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"dataset": name, "runs": runs})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops cached results, either for one dataset
// (?dataset=name) or everything.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	var err error
	if name := r.URL.Query().Get("dataset"); name != "" {
		if !dataset.ValidName(name) {
			h.writeError(w, http.StatusBadRequest, invalidDatasetMsg)
			return
		}
		err = h.cache.InvalidateDataset(r.Context(), name)
	} else {
		err = h.cache.Invalidate(r.Context())
	}
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeParams merges the optional JSON body over the configured defaults.
// Zero thresholds mean "use the default"; zero is out of range anyway.
func (h *Handler) decodeParams(r *http.Request) (mining.Params, error) {
	params := h.engine.DefaultParams()
	var req MineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			return mining.Params{}, fmt.Errorf("invalid JSON body: %w", err)
		}
	} else {
		if req.MinSupport != 0 {
			params.MinSupport = req.MinSupport
		}
		if req.MinConfidence != 0 {
			params.MinConfidence = req.MinConfidence
		}
		if req.MaxLen != 0 {
			params.MaxLen = req.MaxLen
		}
	}
	if err := params.Validate(); err != nil {
		return mining.Params{}, err
	}
	return params, nil
}

func (h *Handler) observeRun(outcome, cacheStatus string, d time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.MiningRunsTotal.WithLabelValues(outcome).Inc()
	h.metrics.MiningRunDuration.WithLabelValues(cacheStatus).Observe(d.Seconds())
}

func cacheStatus(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
