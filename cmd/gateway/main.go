// Command gateway starts the API gateway service.
//
// The gateway is the single entry point for external clients. It authenticates
// requests via API keys (SHA-256 validated against PostgreSQL), applies
// per-key rate limiting, and proxies requests to the ingestion, miner, and
// analytics services behind per-upstream circuit breakers. It also exposes
// admin endpoints for API key management and a direct transaction-lookup
// endpoint backed by PostgreSQL.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/internal/auth/apikey"
	"github.com/smartgrocer/basket-analytics-platform/internal/auth/ratelimit"
	gwhandler "github.com/smartgrocer/basket-analytics-platform/internal/gateway/handler"
	"github.com/smartgrocer/basket-analytics-platform/internal/gateway/router"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
)

// main initialises PostgreSQL, the API-key validator, the rate limiter, the
// gateway handler + router middleware chain, and starts the HTTP server.
// Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting gateway service",
		"port", cfg.Gateway.Port,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"miner_url", cfg.Gateway.MinerURL,
		"analytics_url", cfg.Gateway.AnalyticsURL,
		"auth_enabled", cfg.Gateway.AuthEnabled,
	)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	// PostgreSQL is shared by API key validation and transaction lookups.
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)
	defer limiter.Close()

	h := gwhandler.New(gwhandler.Config{
		IngestionURL: cfg.Gateway.IngestionURL,
		MinerURL:     cfg.Gateway.MinerURL,
		AnalyticsURL: cfg.Gateway.AnalyticsURL,
	}, db, validator, m)

	chain := router.New(h, validator, limiter, cfg.Gateway.AuthEnabled, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway service stopped")
}
