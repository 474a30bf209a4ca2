// Package main is the entrypoint for the relay monitor. It periodically
// sweeps unsent high and critical signals and drives their transmission,
// catching anything the queue-triggered relay workers dropped.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/monitor"
	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/store"
)

const ledgerRequestTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("monitor failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "oracle_enabled", cfg.Oracle.Enabled,
		"sweep_interval", cfg.Oracle.SweepInterval.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	pgStore := store.NewPostgresStore(pool)

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

	m := monitor.New(pgStore, relay, cfg.Oracle.SweepInterval)
	m.Run(ctx)

	slog.Info("monitor stopped gracefully")
	return nil
}
