package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/queue"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// Gate decides whether an analysis result merits ledger transmission and
// creates the signal plus its relay job when it does. Signals are created
// even when the relay capability is disabled, for the audit trail.
type Gate struct {
	store      store.Store
	dispatch   queue.Queue
	metricsCap int
}

// NewGate creates a Gate.
func NewGate(st store.Store, dispatch queue.Queue, cfg config.OracleConfig) *Gate {
	return &Gate{store: st, dispatch: dispatch, metricsCap: cfg.MetricsCap}
}

// MaybeSignal creates a signal for the analysis result if its severity is
// high or critical and no signal exists for it yet. It is idempotent:
// calling it twice for the same result creates exactly one signal. Returns
// (nil, nil) when the result is below the threshold or already signalled.
func (g *Gate) MaybeSignal(ctx context.Context, result *models.AnalysisResult) (*models.Signal, error) {
	if result.Severity != models.SeverityHigh && result.Severity != models.SeverityCritical {
		return nil, nil
	}

	summary, err := CapMetrics(result.Metrics, g.metricsCap)
	if err != nil {
		return nil, fmt.Errorf("summarize metrics: %w", err)
	}
	payload, err := json.Marshal(models.SignalPayload{
		DatasetID:      result.DatasetID,
		Category:       result.Category,
		QualityScore:   result.QualityScore,
		MetricsSummary: summary,
	})
	if err != nil {
		return nil, fmt.Errorf("encode signal payload: %w", err)
	}
	digest, err := MetricsDigest(result.Metrics, g.metricsCap)
	if err != nil {
		return nil, fmt.Errorf("digest metrics: %w", err)
	}

	sig := &models.Signal{
		ID:               uuid.New(),
		AnalysisResultID: result.ID,
		Severity:         result.Severity,
		SignalType:       models.SignalTypeAlert,
		Payload:          payload,
		PayloadDigest:    &digest,
		Status:           models.SignalStatusPending,
		CreatedAt:        time.Now().UTC(),
	}

	if err := g.store.CreateSignal(ctx, sig); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// A signal already exists for this result; nothing to do.
			return nil, nil
		}
		return nil, fmt.Errorf("create signal: %w", err)
	}

	if err := g.EnqueueRelayJob(ctx, sig.ID); err != nil {
		// The signal exists; the monitor sweep will pick it up even if
		// the job could not be dispatched.
		slog.Error("enqueue relay job", "signal_id", sig.ID, "error", err)
	}

	slog.Info("signal created", "signal_id", sig.ID,
		"analysis_result_id", result.ID, "severity", result.Severity)
	return sig, nil
}

// EnqueueRelayJob creates a relay-signal job for the signal and dispatches
// it. Used at signal creation and for operator-initiated retries.
func (g *Gate) EnqueueRelayJob(ctx context.Context, signalID uuid.UUID) error {
	input, err := json.Marshal(models.RelayInput{SignalID: signalID})
	if err != nil {
		return fmt.Errorf("encode relay input: %w", err)
	}

	job := &models.Job{
		ID:        uuid.New(),
		Type:      models.JobTypeRelay,
		Status:    models.JobStatusPending,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create relay job: %w", err)
	}

	if err := g.dispatch.Enqueue(ctx, models.JobTypeRelay, job.ID); err != nil {
		return fmt.Errorf("dispatch relay job: %w", err)
	}
	return nil
}

// RetrySignal resets a failed (or still-pending) signal to a clean pending
// state and enqueues a fresh relay job. A sent signal is never touched.
func (g *Gate) RetrySignal(ctx context.Context, signalID uuid.UUID) error {
	if err := g.store.ResetSignalForRetry(ctx, signalID); err != nil {
		return err
	}
	return g.EnqueueRelayJob(ctx, signalID)
}
