package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// SnapshotSource lists persisted stats snapshots, newest first.
type SnapshotSource interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
}

type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotSource
	logger     *slog.Logger
}

// NewHandler builds the analytics HTTP API. snapshots may be nil when no
// persistence is configured; the snapshots endpoint then reports 501.
func NewHandler(aggregator *Aggregator, snapshots SnapshotSource) *Handler {
	return &Handler{
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

// TopDatasets serves the most mined datasets. Accepts ?limit=N, default 10.
func (h *Handler) TopDatasets(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	if limit > 100 {
		limit = 100
	}
	top := h.aggregator.TopDatasets(limit)
	if top == nil {
		top = []DatasetCount{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"top_datasets": top})
}

// Snapshots serves persisted snapshots, newest first. Accepts ?limit=N,
// default 24.
func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeError(w, http.StatusNotImplemented, "snapshot store not configured")
		return
	}
	limit := queryInt(r, "limit", 24)
	if limit > 500 {
		limit = 500
	}
	snapshots, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list snapshots", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load snapshots")
		return
	}
	if snapshots == nil {
		snapshots = []AggregatedStats{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
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
