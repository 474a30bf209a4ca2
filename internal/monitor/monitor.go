// Package monitor implements the standalone relay sweep: a second,
// queue-independent chance for signals stuck in pending.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/store"
)

const sweepBatchSize = 100

// Monitor periodically scans pending high/critical signals and attempts
// transmission through the same relay logic the queue workers use. The
// store-level signal claim keeps the two paths from double-submitting.
type Monitor struct {
	store    store.Store
	relay    *oracle.Relay
	interval time.Duration
}

// New creates a Monitor.
func New(st store.Store, relay *oracle.Relay, interval time.Duration) *Monitor {
	return &Monitor{store: st, relay: relay, interval: interval}
}

// Run sweeps until ctx is cancelled. A failure on one signal is logged and
// never halts the sweep or the loop.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("relay monitor started", "interval", m.interval, "enabled", m.relay.Enabled())
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Sweep(ctx)
		select {
		case <-ctx.Done():
			slog.Info("relay monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one pass over the pending signals.
func (m *Monitor) Sweep(ctx context.Context) {
	if !m.relay.Enabled() {
		return
	}

	signals, err := m.store.ListPendingSignalsForRelay(ctx, sweepBatchSize)
	if err != nil {
		slog.Error("list pending signals", "error", err)
		return
	}

	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		_, err := m.relay.Send(ctx, sig)
		switch {
		case err == nil:
			// Sent; Relay already logged the tx hash.
		case errors.Is(err, oracle.ErrAlreadyClaimed):
			// A queue worker holds this one.
		default:
			slog.Error("monitor relay attempt", "signal_id", sig.ID, "error", err)
		}
	}
}
