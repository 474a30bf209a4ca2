// Package main is the entrypoint for the pipeline API server.
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

	"github.com/worldmind/pipeline/internal/api"
	"github.com/worldmind/pipeline/internal/api/handler"
	mw "github.com/worldmind/pipeline/internal/api/middleware"
	"github.com/worldmind/pipeline/internal/api/response"
	"github.com/worldmind/pipeline/internal/cache"
	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/queue"
	"github.com/worldmind/pipeline/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "oracle_enabled", cfg.Oracle.Enabled)

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

	// 4. Redis: dispatch queue and cache
	dispatch, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create dispatch queue: %w", err)
	}
	defer dispatch.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store
	pgStore := store.NewPostgresStore(pool)

	// 6. Oracle gate; signer only when the relay is enabled
	gate := oracle.NewGate(pgStore, dispatch, cfg.Oracle)

	var signer *oracle.Signer
	if cfg.Oracle.Enabled {
		signer, err = oracle.NewSigner(cfg.Oracle.PrivateKey)
		if err != nil {
			return fmt.Errorf("create ledger signer: %w", err)
		}
		slog.Info("ledger signer ready", "account", signer.Address())
	}

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		SubmitJob:   handler.NewSubmitJobHandler(pgStore, dispatch),
		GetJob:      handler.NewGetJobHandler(pgStore, redisCache),
		ListJobs:    handler.NewListJobsHandler(pgStore),
		CleanupJobs: handler.NewCleanupJobsHandler(pgStore),

		CreateSource: handler.NewCreateSourceHandler(pgStore),
		ListSources:  handler.NewListSourcesHandler(pgStore),
		GetSource:    handler.NewGetSourceHandler(pgStore),

		CreateDataset: handler.NewCreateDatasetHandler(pgStore),
		ListDatasets:  handler.NewListDatasetsHandler(pgStore),
		GetDataset:    handler.NewGetDatasetHandler(pgStore),

		OracleStatus: handler.NewOracleStatusHandler(cfg.Oracle, signer),
		CreateSignal: handler.NewCreateSignalHandler(pgStore, gate),
		ListSignals:  handler.NewListSignalsHandler(pgStore),
		GetSignal:    handler.NewGetSignalHandler(pgStore),
		RetrySignal:  handler.NewRetrySignalHandler(pgStore, gate),
		OracleStats:  handler.NewOracleStatsHandler(pgStore),

		CreateKey: handler.NewCreateKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
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
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
