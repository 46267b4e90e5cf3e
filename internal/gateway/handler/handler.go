// Package handler implements the gateway's HTTP surface: reverse proxies to
// the ingestion, miner, and analytics services, direct transaction reads
// from Postgres, and API key administration. Each upstream sits behind its
// own circuit breaker so a dead service fails fast instead of tying up
// gateway connections.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/smartgrocer/basket-analytics-platform/internal/auth/apikey"
	"github.com/smartgrocer/basket-analytics-platform/internal/dataset"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
	"github.com/smartgrocer/basket-analytics-platform/pkg/resilience"
)

// Config holds the base URLs of the services the gateway fronts.
type Config struct {
	IngestionURL string
	MinerURL     string
	AnalyticsURL string
}

type upstream struct {
	name    string
	proxy   *httputil.ReverseProxy
	breaker *resilience.CircuitBreaker
}

type proxyErrKey struct{}

// Handler implements the gateway endpoints.
type Handler struct {
	ingestion *upstream
	miner     *upstream
	analytics *upstream
	db        *postgres.Client
	keys      *apikey.Validator
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a gateway Handler. The metrics collector may be nil.
func New(cfg Config, db *postgres.Client, keys *apikey.Validator, m *metrics.Metrics) *Handler {
	h := &Handler{
		db:      db,
		keys:    keys,
		metrics: m,
		logger:  slog.Default().With("component", "gateway-handler"),
	}
	h.ingestion = h.newUpstream("ingestion", cfg.IngestionURL)
	h.miner = h.newUpstream("miner", cfg.MinerURL)
	h.analytics = h.newUpstream("analytics", cfg.AnalyticsURL)
	return h
}

func (h *Handler) newUpstream(name, target string) *upstream {
	u, _ := url.Parse(target)
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if ep, ok := r.Context().Value(proxyErrKey{}).(*error); ok {
			*ep = err
		}
		h.logger.Error("upstream request failed", "upstream", name, "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return &upstream{
		name:    name,
		proxy:   rp,
		breaker: resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{}),
	}
}

// forward runs the proxy call through the upstream's circuit breaker. Only
// transport-level failures count against the breaker; an upstream that
// answers, even with a 5xx, is alive.
func (h *Handler) forward(u *upstream, w http.ResponseWriter, r *http.Request) {
	err := u.breaker.Execute(func() error {
		var perr error
		ctx := context.WithValue(r.Context(), proxyErrKey{}, &perr)
		u.proxy.ServeHTTP(w, r.WithContext(ctx))
		if perr != nil && errors.Is(perr, context.Canceled) {
			// Client disconnects are not upstream failures.
			return nil
		}
		return perr
	})
	if h.metrics != nil {
		h.metrics.CircuitBreakerState.WithLabelValues(u.name).Set(float64(u.breaker.GetState()))
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		h.logger.Warn("request rejected, circuit open", "upstream", u.name, "path", r.URL.Path)
		h.writeError(w, http.StatusServiceUnavailable, u.name+" service temporarily unavailable")
	}
}

// ---------- Proxy handlers ----------

// ProxyIngestion forwards transaction intake to the ingestion service.
func (h *Handler) ProxyIngestion(w http.ResponseWriter, r *http.Request) {
	h.forward(h.ingestion, w, r)
}

// ProxyMiner forwards mining, stats, and cache requests to the miner.
func (h *Handler) ProxyMiner(w http.ResponseWriter, r *http.Request) {
	h.forward(h.miner, w, r)
}

// ProxyAnalytics forwards analytics requests to the analytics service.
func (h *Handler) ProxyAnalytics(w http.ResponseWriter, r *http.Request) {
	h.forward(h.analytics, w, r)
}

// ---------- Direct data handlers ----------

type transactionRow struct {
	ID        string    `json:"id"`
	Dataset   string    `json:"dataset"`
	GroupID   string    `json:"group_id"`
	Item      string    `json:"item"`
	TxDate    string    `json:"tx_date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetTransaction fetches one stored transaction by UUID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusBadRequest, "transaction id must be a UUID")
		return
	}

	var (
		row    transactionRow
		txDate sql.NullTime
	)
	err := h.db.DB.QueryRowContext(r.Context(),
		`SELECT id, dataset, group_id, item, tx_date, created_at
		 FROM transactions WHERE id = $1`, id,
	).Scan(&row.ID, &row.Dataset, &row.GroupID, &row.Item, &txDate, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch transaction", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return
	}
	if txDate.Valid {
		row.TxDate = txDate.Time.Format("2006-01-02")
	}

	h.writeJSON(w, http.StatusOK, row)
}

// ListTransactions returns stored transactions newest first, optionally
// filtered to one dataset.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	name := r.URL.Query().Get("dataset")
	if name != "" && !dataset.ValidName(name) {
		h.writeError(w, http.StatusBadRequest, "invalid dataset name")
		return
	}

	var (
		rows *sql.Rows
		err  error
	)
	if name == "" {
		rows, err = h.db.DB.QueryContext(r.Context(),
			`SELECT id, dataset, group_id, item, tx_date, created_at
			 FROM transactions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	} else {
		rows, err = h.db.DB.QueryContext(r.Context(),
			`SELECT id, dataset, group_id, item, tx_date, created_at
			 FROM transactions WHERE dataset = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			name, limit, offset,
		)
	}
	if err != nil {
		h.logger.Error("failed to list transactions", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	defer rows.Close()

	transactions := make([]transactionRow, 0)
	for rows.Next() {
		var (
			row    transactionRow
			txDate sql.NullTime
		)
		if err := rows.Scan(&row.ID, &row.Dataset, &row.GroupID, &row.Item, &txDate, &row.CreatedAt); err != nil {
			h.logger.Error("failed to scan transaction row", "error", err)
			continue
		}
		if txDate.Valid {
			row.TxDate = txDate.Time.Format("2006-01-02")
		}
		transactions = append(transactions, row)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
		"limit":        limit,
		"offset":       offset,
	})
}

// ---------- Admin handlers ----------

// CreateAPIKey mints a new API key. The raw key appears in this response
// and nowhere else.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
		ExpiresIn string `json:"expires_in,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 100
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid expires_in duration")
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	key, err := h.keys.CreateKey(r.Context(), req.Name, req.RateLimit, expiresAt)
	if errors.Is(err, apikey.ErrKeyExists) {
		h.writeError(w, http.StatusConflict, "a key with that name already exists")
		return
	}
	if err != nil {
		h.logger.Error("failed to create api key", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"api_key": key,
		"name":    req.Name,
		"message": "store this key securely, it cannot be retrieved again",
	})
}

// ListAPIKeys returns metadata for every active key.
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list api keys", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// ---------- Health ----------

// Health reports gateway liveness along with each upstream's circuit state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gateway",
		"upstreams": map[string]string{
			h.ingestion.name: h.ingestion.breaker.GetState().String(),
			h.miner.name:     h.miner.breaker.GetState().String(),
			h.analytics.name: h.analytics.breaker.GetState().String(),
		},
	})
}

// ---------- Helpers ----------

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
