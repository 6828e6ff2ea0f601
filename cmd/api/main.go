package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/folio/contact-relay/config"
	"github.com/folio/contact-relay/internal/handlers"
	"github.com/folio/contact-relay/internal/provider"
	"github.com/folio/contact-relay/internal/repository"
	"github.com/folio/contact-relay/internal/services"
	"github.com/folio/contact-relay/pkg/db"
	"github.com/folio/contact-relay/pkg/httpclient"
	"github.com/folio/contact-relay/pkg/logger"
	"github.com/folio/contact-relay/pkg/metrics"
	"github.com/folio/contact-relay/pkg/profiling"
	"github.com/folio/contact-relay/pkg/tracing"
)

// openStore builds the rate limit store selected by RATE_LIMIT_STORE.
// The returned cleanup releases the underlying connection.
func openStore(ctx context.Context, cfg *config.Config) (repository.RateLimitStore, func(), error) {
	switch cfg.RateLimit.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database connection pool: %w", err)
		}
		return repository.NewPostgresRateLimitStore(pool), func() { db.Close(pool) }, nil

	case config.StoreRedis:
		rdb, err := repository.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		return repository.NewRedisRateLimitStore(rdb, cfg.RateLimit.Window), func() { _ = rdb.Close() }, nil //nolint:errcheck

	default:
		logger.Warn("Using in-process rate limit store; limits are not shared between replicas")
		return repository.NewMemoryRateLimitStore(cfg.RateLimit.Window, time.Minute), func() {}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting contact relay",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
		zap.String("store", cfg.RateLimit.Store),
		zap.String("provider", cfg.Provider.Name),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracing.InitTracer(cfg.Observability, cfg.Server.AppEnv)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	stopProfiler, err := profiling.InitProfiler(cfg.Profiling, cfg.Observability, cfg.Server.AppEnv)
	if err != nil {
		logger.Error("Failed to start profiler", zap.Error(err))
	} else {
		defer stopProfiler()
	}

	metrics.RecordInfrastructureMetrics(ctx)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize rate limit store", zap.Error(err))
	}
	defer closeStore()

	// Missing secrets are reported per request, never at boot
	if !cfg.Provider.IsConfigured() {
		logger.Warn("Email provider secrets are missing; submissions will fail until configured",
			zap.String("provider", cfg.Provider.Name))
	}

	emailProvider, err := provider.New(cfg.Provider, httpclient.NewClientWithTimeout(cfg.Provider.Timeout))
	if err != nil {
		logger.Fatal("Failed to initialize email provider", zap.Error(err))
	}

	relayService := services.NewRelayService(store, emailProvider, cfg.RateLimit, cfg.Provider.Timeout)

	relayHandler := handlers.NewRelayHandler(relayService, cfg.RateLimit.MaxSubmissions, cfg.RateLimit.Window)
	healthHandler := handlers.NewHealthHandler(store.Name(), store.Ping)

	router := newRouter(ctx, cfg, relayHandler, healthHandler)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Provider.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return relayService.RunJanitor(gctx, cfg.RateLimit.PurgeInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
