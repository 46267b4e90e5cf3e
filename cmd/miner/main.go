// Command miner starts the basket mining HTTP service.
//
// On startup the service replays the transaction topic to rebuild its
// in-memory dataset stores, then serves mining, dataset statistics, and
// cache administration endpoints. Redis and Postgres are optional: without
// Redis results are computed fresh on every request, without Postgres the
// run history endpoint reports itself unconfigured.
//
// Usage:
//
//	go run ./cmd/miner [-config configs/development.yaml]
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

	"github.com/smartgrocer/basket-analytics-platform/internal/analytics"
	"github.com/smartgrocer/basket-analytics-platform/internal/dataset"
	"github.com/smartgrocer/basket-analytics-platform/internal/miner/audit"
	"github.com/smartgrocer/basket-analytics-platform/internal/miner/cache"
	"github.com/smartgrocer/basket-analytics-platform/internal/miner/handler"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/health"
	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
	"github.com/smartgrocer/basket-analytics-platform/pkg/middleware"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
	pkgredis "github.com/smartgrocer/basket-analytics-platform/pkg/redis"
	"github.com/smartgrocer/basket-analytics-platform/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	tracing.Setup(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	slog.Info("starting miner service", "port", cfg.Server.Port, "workers", cfg.Mining.Workers)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := dataset.NewStore()
	loaderConsumer := kafka.NewReplayConsumer(cfg.Kafka, cfg.Kafka.Topics.TransactionIngest, dataset.HandleMessage(store, m))
	loader := dataset.NewLoader(loaderConsumer)
	go func() {
		if err := loader.Start(ctx); err != nil {
			slog.Error("dataset loader error", "error", err)
		}
	}()
	slog.Info("replaying transaction topic", "topic", cfg.Kafka.Topics.TransactionIngest)

	var resultCache *cache.ResultCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		resultCache = cache.New(redisClient, cfg.Redis)
		slog.Info("result cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	var history handler.RunHistory
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, run history disabled", "error", err)
	} else {
		defer db.Close()
		runStore := audit.NewStore(db)
		runStore.StartPruning(ctx, time.Hour)
		history = runStore
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()
	slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	engine := mining.NewEngine(cfg.Mining)
	h := handler.New(engine, store, resultCache, history, collector, m)

	checker := health.NewChecker()
	checker.Register("dataset_store", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d datasets loaded", len(store.List()))}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
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
	mux.HandleFunc("POST /api/v1/datasets/{dataset}/mine", h.Mine)
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/stats", h.DatasetStats)
	mux.HandleFunc("GET /api/v1/datasets/{dataset}/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/datasets", h.ListDatasets)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
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

	slog.Info("miner service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("miner service stopped")
}
