// Command analytics starts the standalone analytics aggregation service.
//
// It consumes usage events from Kafka (mining runs, cache hits, ingest
// volume), aggregates them in memory, and serves dashboards at
// GET /api/v1/analytics/stats. When PostgreSQL is available the aggregated
// state is snapshotted periodically and restored on startup, so counters
// survive restarts.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/smartgrocer/basket-analytics-platform/internal/analytics"
	"github.com/smartgrocer/basket-analytics-platform/internal/analytics/aggregator"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/health"
	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
	"github.com/smartgrocer/basket-analytics-platform/pkg/middleware"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
)

// main boots the analytics service: it creates a Kafka consumer for usage
// events, starts the in-memory aggregator, restores persisted state, and
// serves the HTTP API. Graceful shutdown is triggered by SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The consumer handler closes over agg, which is assigned before
	// consumption starts in agg.Start.
	var agg *analytics.Aggregator
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
		func(ctx context.Context, key, value []byte) error {
			return analytics.HandleEvent(agg)(ctx, key, value)
		})
	agg = analytics.NewAggregator(consumer)

	var snapshots analytics.SnapshotSource
	var store *aggregator.Store
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshot persistence disabled", "error", err)
	} else {
		defer db.Close()
		store = aggregator.NewStore(db)
		snapshots = store
	}

	if store != nil {
		if stats, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("failed to load latest snapshot", "error", err)
		} else if stats != nil {
			agg.Restore(*stats)
			slog.Info("aggregator state restored",
				"total_runs", stats.TotalRuns,
				"total_ingested", stats.TotalIngested,
			)
		}
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
	}

	go func() {
		if err := agg.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	h := analytics.NewHandler(agg, snapshots)

	checker := health.NewChecker()
	checker.Register("aggregator", func(ctx context.Context) health.ComponentHealth {
		stats := agg.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d runs aggregated", stats.TotalRuns),
		}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if db == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/top-datasets", h.TopDatasets)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
