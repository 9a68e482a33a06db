// Command analytics aggregates search events published by the search service.
//
// It consumes the search-events topic, keeps running statistics in memory
// (searches per mode, latency percentiles, cache hit rate, zero-result and
// unknown-term counts, top queries), snapshots them to PostgreSQL when it is
// reachable, and serves:
//
//	GET /api/v1/analytics
//	GET /api/v1/analytics/snapshots?limit=N
//	GET /health/live, /health/ready
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

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.SearchEvents)

	checker := health.NewChecker()
	checker.Register("kafka", health.Static(health.StatusUp, "consumer active"))

	var snapshots analytics.SnapshotLister
	pg, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		checker.Register("postgres", health.Static(health.StatusDegraded, "not connected"))
	} else {
		defer pg.Close()
		store := aggregator.NewStore(pg)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("creating snapshot schema failed", "error", err)
		} else {
			store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
			snapshots = store
		}
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			return health.FromError(pg.Ping(ctx), health.StatusDegraded)
		})
	}

	h := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
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
