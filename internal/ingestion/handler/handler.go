// Package handler exposes the transaction ingestion HTTP endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/internal/analytics"
	"github.com/smartgrocer/basket-analytics-platform/internal/dataset"
	"github.com/smartgrocer/basket-analytics-platform/internal/ingestion"
	"github.com/smartgrocer/basket-analytics-platform/internal/ingestion/validator"
	apperrors "github.com/smartgrocer/basket-analytics-platform/pkg/errors"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
)

// maxCSVSize caps uploaded CSV files at 64 MiB.
const maxCSVSize = 64 << 20

// Ingestor persists and publishes transactions. Implemented by
// publisher.Publisher.
type Ingestor interface {
	Ingest(ctx context.Context, req *ingestion.TransactionRequest) (*ingestion.TransactionResponse, error)
	IngestBatch(ctx context.Context, req *ingestion.BatchRequest) (*ingestion.BatchResponse, error)
	IngestCSV(ctx context.Context, dataset, idempotencyKey string, r io.Reader) (*ingestion.BatchResponse, error)
}

// EventTracker receives analytics events without blocking the request.
// Satisfied by analytics.Collector and collector.BatchCollector.
type EventTracker interface {
	Track(key string, event any)
}

type Handler struct {
	ingestor  Ingestor
	collector EventTracker
	logger    *slog.Logger
}

// New creates a Handler. The collector may be nil, which disables analytics
// event emission.
func New(ing Ingestor, collector EventTracker) *Handler {
	return &Handler{
		ingestor:  ing,
		collector: collector,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest handles POST /api/v1/transactions.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	start := time.Now()
	var req ingestion.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if !h.validate(w, &req) {
		return
	}

	resp, err := h.ingestor.Ingest(ctx, &req)
	if err != nil {
		h.failRequest(w, log, "transaction ingestion failed", err)
		return
	}
	log.Info("transaction ingested",
		"transaction_id", resp.TransactionID,
		"dataset", resp.Dataset,
		"status", resp.Status,
	)
	h.trackIngest(resp.Dataset, 1, 0, start)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// IngestBatch handles POST /api/v1/transactions/batch.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	start := time.Now()
	var req ingestion.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	if !h.validate(w, &req) {
		return
	}

	resp, err := h.ingestor.IngestBatch(ctx, &req)
	if err != nil {
		h.failRequest(w, log, "batch ingestion failed", err)
		return
	}
	log.Info("batch ingested",
		"dataset", resp.Dataset,
		"accepted", resp.Accepted,
		"dropped", resp.Dropped,
	)
	h.trackIngest(resp.Dataset, resp.Accepted, resp.Dropped, start)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// UploadCSV handles POST /api/v1/datasets/{dataset}/csv. The body is either
// a multipart form with a "file" part or a raw CSV payload.
func (h *Handler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	start := time.Now()
	name := r.PathValue("dataset")
	if !dataset.ValidName(name) {
		h.writeError(w, http.StatusBadRequest, "dataset name must be 1-64 letters, digits, dots, dashes or underscores")
		return
	}

	body, cleanup, err := csvBody(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	resp, err := h.ingestor.IngestCSV(ctx, name, r.Header.Get("Idempotency-Key"), body)
	if err != nil {
		h.failRequest(w, log, "csv ingestion failed", err)
		return
	}
	log.Info("csv ingested",
		"dataset", resp.Dataset,
		"accepted", resp.Accepted,
		"dropped", resp.Dropped,
		"bad_dates", resp.BadDates,
	)
	h.trackIngest(resp.Dataset, resp.Accepted, resp.Dropped, start)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) trackIngest(dataset string, records, dropped int, start time.Time) {
	if h.collector == nil {
		return
	}
	h.collector.Track(dataset, analytics.IngestEvent{
		Type:      analytics.EventIngest,
		Dataset:   dataset,
		Records:   records,
		Dropped:   dropped,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
	})
}

// validate runs struct validation and writes the field-level error response
// itself. It reports whether the request may proceed.
func (h *Handler) validate(w http.ResponseWriter, req any) bool {
	err := validator.Validate(req)
	if err == nil {
		return true
	}
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return false
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
	return false
}

func (h *Handler) failRequest(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	log.Error(msg,
		"error", err,
		"status_code", statusCode,
	)
	if statusCode >= http.StatusInternalServerError {
		h.writeError(w, statusCode, msg)
		return
	}
	h.writeError(w, statusCode, err.Error())
}

// csvBody extracts the CSV stream from the request. Multipart uploads use
// the "file" part; anything else is treated as a raw CSV body.
func csvBody(r *http.Request) (io.Reader, func(), error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxCSVSize)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxCSVSize); err != nil {
			return nil, func() {}, errors.New("invalid multipart form")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, func() {}, errors.New("multipart form must include a \"file\" part")
		}
		return file, func() { file.Close() }, nil
	}
	return r.Body, func() {}, nil
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
