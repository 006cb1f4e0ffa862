// Package main is the entrypoint for the sensordash API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/kiranshivaraju/sensordash/internal/alert"
	"github.com/kiranshivaraju/sensordash/internal/api"
	"github.com/kiranshivaraju/sensordash/internal/api/handler"
	mw "github.com/kiranshivaraju/sensordash/internal/api/middleware"
	"github.com/kiranshivaraju/sensordash/internal/cache"
	"github.com/kiranshivaraju/sensordash/internal/config"
	"github.com/kiranshivaraju/sensordash/internal/ingest"
	"github.com/kiranshivaraju/sensordash/internal/metrics"
	"github.com/kiranshivaraju/sensordash/internal/notify"
	"github.com/kiranshivaraju/sensordash/internal/query"
	"github.com/kiranshivaraju/sensordash/internal/retention"
	"github.com/kiranshivaraju/sensordash/internal/store"
)

const (
	shutdownTimeout  = 30 * time.Second
	metricsNamespace = "sensordash"
)

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logLevel.Set(parseLevel(cfg.Server.LogLevel))
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"notify_backend", cfg.Notify.Backend,
		"retention_timezone", cfg.Retention.Timezone,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Door state-change publisher
	publisher, err := notify.NewPublisher(cfg.Notify, redisCache)
	if err != nil {
		return fmt.Errorf("create door publisher: %w", err)
	}
	defer publisher.Close()
	slog.Info("door publisher initialized", "backend", publisher.Name())

	// 6. Core components
	pgStore := store.NewPostgresStore(pool)
	m := metrics.New(metricsNamespace)
	timeout := cfg.Database.StorageTimeout

	gateway := ingest.NewGateway(pgStore, redisCache, publisher, m, timeout)
	engine := query.NewEngine(pgStore, m, timeout)
	evaluator := alert.NewEvaluator(pgStore, redisCache, m, timeout)

	// 7. Retention scheduler
	if !cfg.Retention.IncludeCustomerCounts {
		slog.Warn("customer count tables are not purged; set RETENTION_INCLUDE_CUSTOMER_COUNTS=true to include them")
	}
	scheduler := retention.NewScheduler(pgStore, redisCache, m, retention.Config{
		Hour:         cfg.Retention.Hour,
		Minute:       cfg.Retention.Minute,
		Location:     cfg.Retention.Location,
		Classes:      retention.DefaultClasses(cfg.Retention.IncludeCustomerCounts),
		TableTimeout: cfg.Retention.TableTimeout,
	})
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore, timeout)
	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(redisCache, cfg.Ingest.RateLimitPerMinute),
		Metrics:   m,
		Polling:   cfg.Polling,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache, scheduler),

		IngestHandler:       handler.NewIngestHandler(gateway),
		RecordEdgeHandler:   handler.NewRecordEdgeHandler(gateway),
		ResetCounterHandler: handler.NewResetCounterHandler(gateway),
		CommitCountHandler:  handler.NewCommitCountHandler(gateway),

		LatestReadings:    handler.NewLatestReadingsHandler(engine),
		AllReadings:       handler.NewAllReadingsHandler(engine),
		AlertHandler:      handler.NewAlertHandler(evaluator),
		CounterHandler:    handler.NewCounterHandler(gateway),
		PollConfigHandler: handler.NewPollConfigHandler(cfg.Polling),

		TriggerHandler:      handler.NewTriggerHandler(gateway),
		CorrectCountHandler: handler.NewCorrectCountHandler(pgStore, timeout),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore, timeout),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore, timeout),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore, timeout),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		stop()
		auth.Wait()
		<-schedulerDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// In-flight door notifications finish before the publisher closes,
	// and last-used updates before the pool closes.
	gateway.Wait()
	auth.Wait()
	<-schedulerDone

	slog.Info("server stopped gracefully")
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
