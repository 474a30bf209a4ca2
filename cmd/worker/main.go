// Package main is the entrypoint for the pipeline background worker.
// It runs one claim pool per job type: extraction, analysis, and signal
// relay.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/worldmind/pipeline/internal/analyze"
	"github.com/worldmind/pipeline/internal/cache"
	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/extract"
	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/queue"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/internal/worker"
)

const ledgerRequestTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}
	slog.Info("config loaded", "identity", hostname,
		"extract_workers", cfg.Worker.ExtractWorkers,
		"analyze_workers", cfg.Worker.AnalyzeWorkers,
		"relay_workers", cfg.Worker.RelayWorkers,
		"oracle_enabled", cfg.Oracle.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

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

	pgStore := store.NewPostgresStore(pool)

	// Relay stack. With the oracle disabled the relay short-circuits and
	// relay jobs complete with a disabled marker.
	var signer *oracle.Signer
	var client oracle.LedgerClient
	if cfg.Oracle.Enabled {
		signer, err = oracle.NewSigner(cfg.Oracle.PrivateKey)
		if err != nil {
			return fmt.Errorf("create ledger signer: %w", err)
		}
		client = oracle.NewRPCClient(cfg.Oracle.RPCURL, ledgerRequestTimeout)
		slog.Info("ledger signer ready", "account", signer.Address())
	}
	relay := oracle.NewRelay(pgStore, client, signer, cfg.Oracle)
	gate := oracle.NewGate(pgStore, dispatch, cfg.Oracle)

	extractExec := worker.NewExtractExecutor(pgStore, extract.NewHTTPExtractor(cfg.Extract), cfg.Extract)
	analyzeExec := worker.NewAnalyzeExecutor(pgStore, analyze.NewHTTPAnalyzer(cfg.Analyze), gate)
	relayExec := worker.NewRelayExecutor(pgStore, relay)

	pools := []*worker.Pool{
		worker.NewPool(pgStore, dispatch, redisCache, extractExec, cfg.Worker.ExtractWorkers, hostname, cfg.Worker),
		worker.NewPool(pgStore, dispatch, redisCache, analyzeExec, cfg.Worker.AnalyzeWorkers, hostname, cfg.Worker),
		worker.NewPool(pgStore, dispatch, redisCache, relayExec, cfg.Worker.RelayWorkers, hostname, cfg.Worker),
	}

	var wg sync.WaitGroup
	for _, p := range pools {
		wg.Add(1)
		go func(p *worker.Pool) {
			defer wg.Done()
			p.Run(ctx)
		}(p)
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for in-flight jobs...")
	wg.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}
