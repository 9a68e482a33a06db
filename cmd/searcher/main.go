// Command searcher serves ranked document search over the body and title
// channels.
//
// It loads both term indexes at startup, reads posting lists from the
// configured blob backend on demand, and exposes:
//
//	GET  /api/v1/search?q=...&limit=N
//	GET  /api/v1/search/fused?q=...&limit=N&body_weight=B&title_weight=T
//	GET  /api/v1/cache/stats
//	POST /api/v1/cache/invalidate
//	GET  /health/live, /health/ready
//
// The same searches are available over the JSON RPC transport on
// server.rpcPort.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/searcher/titles"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/tracing"
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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"rpc_port", cfg.Server.RPCPort,
		"postings_backend", cfg.Postings.Backend,
		"titles_backend", cfg.Titles.Backend,
	)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	bodyIndex, err := index.Load(cfg.Index.BodyPath, "body")
	if err != nil {
		return fmt.Errorf("loading body index: %w", err)
	}
	titleIndex, err := index.Load(cfg.Index.TitlePath, "title")
	if err != nil {
		return fmt.Errorf("loading title index: %w", err)
	}

	backend, err := storage.NewBackend(ctx, cfg.Postings)
	if err != nil {
		return fmt.Errorf("opening postings backend: %w", err)
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	bodyReader := newReader(backend, cfg.Postings, "body", cfg.Postings.BodyPrefix, m)
	titleReader := newReader(backend, cfg.Postings, "title", cfg.Postings.TitlePrefix, m)

	bodyScorer := ranker.NewScorer("body", bodyIndex, bodyReader, cfg.Index.CollectionSize)
	titleScorer := ranker.NewScorer("title", titleIndex, titleReader, cfg.Index.CollectionSize)

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled || cfg.Titles.Backend == "redis" {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			if cfg.Titles.Backend == "redis" {
				return fmt.Errorf("connecting to redis title store: %w", err)
			}
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
		}
	}

	loadTitles, closeTitles := titleLoader(cfg, redisClient)
	defer closeTitles()
	resolver := titles.NewResolver(loadTitles, m)

	exec := executor.New(bodyScorer, titleScorer, resolver, executor.Config{
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		ChannelTimeout:      cfg.Search.ChannelTimeout,
		Weights:             merger.Weights{Body: cfg.Search.BodyWeight, Title: cfg.Search.TitleWeight},
	}, m)

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled && redisClient != nil {
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	var tracker analytics.Tracker
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		if cfg.Analytics.BatchSize > 1 {
			bc := collector.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
			collectorCtx, cancel := context.WithCancel(context.Background())
			bc.Start(collectorCtx)
			defer func() {
				cancel()
				bc.Close()
			}()
			tracker = bc
		} else {
			c := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
			c.Start(context.Background())
			defer c.Close()
			tracker = c
		}
		slog.Info("search analytics enabled", "topic", cfg.Kafka.Topics.SearchEvents, "batch_size", cfg.Analytics.BatchSize)
	}

	h := handler.New(exec, queryCache, tracker, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	checker := health.NewChecker()
	checker.Register("index", health.Static(health.StatusUp,
		fmt.Sprintf("body=%d terms, title=%d terms", bodyIndex.Terms(), titleIndex.Terms())))
	checker.Register("postings", func(context.Context) health.ComponentHealth {
		return breakerHealth(bodyReader, titleReader)
	})
	checker.Register("titles", func(context.Context) health.ComponentHealth {
		if !resolver.Loaded() {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not loaded yet"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.FromError(redisClient.Ping(ctx), health.StatusDegraded)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/fused", h.SearchFused)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	tracer := tracing.NewTracer(cfg.Tracing)
	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = tracer.Middleware(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	rpc := grpc.NewServer()
	h.RegisterRPC(rpc)
	go func() {
		if err := rpc.Serve(fmt.Sprintf(":%d", cfg.Server.RPCPort)); err != nil {
			slog.Error("rpc server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		rpc.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newReader(backend storage.Backend, cfg config.PostingsConfig, channel, prefix string, m *metrics.Metrics) *storage.Reader {
	return storage.NewReader(backend, storage.ReaderConfig{
		Channel:   channel,
		Prefix:    prefix,
		BlockSize: cfg.BlockSize,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     time.Second,
		},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     cfg.BreakerReset,
		},
		Metrics: m,
	})
}

func breakerHealth(readers ...*storage.Reader) health.ComponentHealth {
	for _, r := range readers {
		if state := r.BreakerState(); state != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		}
	}
	return health.ComponentHealth{Status: health.StatusUp}
}

// titleLoader opens the configured title store lazily, on the first search
// that needs titles.
func titleLoader(cfg *config.Config, redisClient *pkgredis.Client) (titles.Loader, func()) {
	switch cfg.Titles.Backend {
	case "redis":
		return func(context.Context) (titles.Store, error) {
			return titles.NewRedisStore(redisClient, cfg.Titles.KeyPrefix), nil
		}, func() {}
	case "postgres":
		var (
			mu sync.Mutex
			pg *postgres.Client
		)
		load := func(ctx context.Context) (titles.Store, error) {
			client, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return nil, err
			}
			mu.Lock()
			pg = client
			mu.Unlock()
			return titles.NewPostgresStore(client.DB, cfg.Titles.Table), nil
		}
		return load, func() {
			mu.Lock()
			defer mu.Unlock()
			if pg != nil {
				pg.Close()
			}
		}
	default:
		return func(context.Context) (titles.Store, error) {
			store, err := titles.LoadFile(cfg.Titles.Path)
			if err != nil {
				return nil, err
			}
			slog.Info("title store loaded", "path", cfg.Titles.Path, "titles", store.Len())
			return store, nil
		}, func() {}
	}
}
