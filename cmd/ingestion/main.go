// Command ingestion starts the transaction ingestion HTTP service.
//
// The service accepts purchase transactions one at a time, in batches, or as
// CSV uploads, validates and normalizes them, persists them to PostgreSQL,
// and publishes them to a Kafka topic for the miner to consume. It provides
// a health endpoint at GET /health.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/smartgrocer/basket-analytics-platform/internal/analytics/collector"
	"github.com/smartgrocer/basket-analytics-platform/internal/ingestion/handler"
	"github.com/smartgrocer/basket-analytics-platform/internal/ingestion/publisher"
	"github.com/smartgrocer/basket-analytics-platform/pkg/config"
	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
	"github.com/smartgrocer/basket-analytics-platform/pkg/metrics"
	"github.com/smartgrocer/basket-analytics-platform/pkg/middleware"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
)

// main loads configuration, connects to PostgreSQL, creates the Kafka
// producers, wires up the ingestion handler, and starts the HTTP server.
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.TransactionIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.TransactionIngest)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	batch := collector.NewBatchCollector(analyticsProducer, 100, 5*time.Second)
	batch.Start(ctx)
	defer batch.Close()

	pub := publisher.New(db, producer, cfg.Kafka.Topics.TransactionIngest, m)
	h := handler.New(pub, batch)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/transactions", h.Ingest)
	mux.HandleFunc("POST /api/v1/transactions/batch", h.IngestBatch)
	mux.HandleFunc("POST /api/v1/datasets/{dataset}/csv", h.UploadCSV)
	mux.HandleFunc("GET /health", h.Health)

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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
