package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// RelayExecutor serves relay-signal jobs by driving one ledger transmission
// attempt for the referenced signal.
type RelayExecutor struct {
	store store.Store
	relay *oracle.Relay
}

// NewRelayExecutor creates a RelayExecutor.
func NewRelayExecutor(st store.Store, relay *oracle.Relay) *RelayExecutor {
	return &RelayExecutor{store: st, relay: relay}
}

func (e *RelayExecutor) Type() string { return models.JobTypeRelay }

func (e *RelayExecutor) Execute(ctx context.Context, job *models.Job, report ProgressFunc) (json.RawMessage, error) {
	var input models.RelayInput
	if err := json.Unmarshal(job.Input, &input); err != nil {
		return nil, fmt.Errorf("decode relay input: %w", err)
	}

	sig, err := e.store.GetSignal(ctx, input.SignalID)
	if err != nil {
		return nil, fmt.Errorf("load signal %s: %w", input.SignalID, err)
	}

	// Someone else already resolved this signal (monitor sweep or an
	// earlier attempt); nothing to do.
	if sig.Status != models.SignalStatusPending {
		out := models.RelayOutput{}
		if sig.TxHash != nil {
			out.TxHash = *sig.TxHash
		}
		return json.Marshal(out)
	}

	txHash, err := e.relay.Send(ctx, sig)
	switch {
	case errors.Is(err, oracle.ErrRelayDisabled):
		return json.Marshal(models.RelayOutput{Disabled: true})
	case errors.Is(err, oracle.ErrAlreadyClaimed):
		return json.Marshal(models.RelayOutput{})
	case err != nil:
		return nil, err
	}

	return json.Marshal(models.RelayOutput{TxHash: txHash})
}
