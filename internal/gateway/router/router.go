// Package router assembles the gateway's route table and middleware chain.
package router

import (
	"net/http"

	gwhandler "github.com/smartgrocer/basket-analytics-platform/internal/gateway/handler"
	gwmw "github.com/smartgrocer/basket-analytics-platform/internal/gateway/middleware"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
	pkgmw "github.com/smartgrocer/basket-analytics-platform/pkg/middleware"
)

// New builds the gateway HTTP handler.
//
// Route table:
//
//	POST /api/v1/transactions               → ingestion service (proxy)
//	POST /api/v1/transactions/batch         → ingestion service (proxy)
//	POST /api/v1/datasets/{dataset}/csv     → ingestion service (proxy)
//	GET  /api/v1/transactions               → list transactions (direct DB)
//	GET  /api/v1/transactions/{id}          → get transaction   (direct DB)
//	POST /api/v1/datasets/{dataset}/mine    → miner service     (proxy)
//	GET  /api/v1/datasets/{dataset}/stats   → miner service     (proxy)
//	GET  /api/v1/datasets/{dataset}/runs    → miner service     (proxy)
//	GET  /api/v1/datasets                   → miner service     (proxy)
//	GET  /api/v1/cache/stats                → miner service     (proxy)
//	POST /api/v1/cache/invalidate           → miner service     (proxy)
//	GET  /api/v1/analytics/stats            → analytics service (proxy)
//	GET  /api/v1/analytics/top-datasets     → analytics service (proxy)
//	GET  /api/v1/analytics/snapshots        → analytics service (proxy)
//	POST /api/v1/admin/keys                 → create API key    (direct DB)
//	GET  /api/v1/admin/keys                 → list API keys     (direct DB)
//	GET  /health                            → gateway health
//
// Middleware executes RequestID → Metrics → CORS → Auth → RateLimit → mux.
// Auth must run before RateLimit because the limiter reads the validated
// key from context. With authEnabled false both are skipped, leaving the
// gateway open; that mode exists for local development only. m may be nil,
// which skips HTTP metrics.
func New(h *gwhandler.Handler, validator gwmw.KeyValidator, limiter gwmw.Limiter, authEnabled bool, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	// Transaction intake and reads
	mux.HandleFunc("POST /api/v1/transactions", h.ProxyIngestion)
	mux.HandleFunc("POST /api/v1/transactions/batch", h.ProxyIngestion)
	mux.HandleFunc("POST /api/v1/datasets/{dataset}/csv", h.ProxyIngestion)
	mux.HandleFunc("GET /api/v1/transactions", h.ListTransactions)
	mux.HandleFunc("GET /api/v1/transactions/{id}", h.GetTransaction)

	// Mining API
	mux.HandleFunc("POST /api/v1/datasets/{dataset}/mine", h.ProxyMiner)
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/stats", h.ProxyMiner)
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/runs", h.ProxyMiner)
	mux.HandleFunc("GET /api/v1/datasets", h.ProxyMiner)
	mux.HandleFunc("GET /api/v1/cache/stats", h.ProxyMiner)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.ProxyMiner)

	// Analytics API
	mux.HandleFunc("GET /api/v1/analytics/stats", h.ProxyAnalytics)
	mux.HandleFunc("GET /api/v1/analytics/top-datasets", h.ProxyAnalytics)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.ProxyAnalytics)

	// Admin API
	mux.HandleFunc("POST /api/v1/admin/keys", h.CreateAPIKey)
	mux.HandleFunc("GET /api/v1/admin/keys", h.ListAPIKeys)

	var chain http.Handler = mux
	if authEnabled {
		chain = gwmw.RateLimit(limiter)(chain)
		chain = gwmw.Auth(validator)(chain)
	}
	chain = gwmw.CORS(gwmw.DefaultCORSConfig())(chain)
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = pkgmw.RequestID(chain)

	return chain
}
