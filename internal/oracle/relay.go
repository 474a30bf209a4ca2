package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// Relay outcomes that are not transmission failures.
var (
	// ErrRelayDisabled means the oracle capability is off; signal creation
	// still happens for audit, but no network call is attempted.
	ErrRelayDisabled = errors.New("oracle relay disabled")

	// ErrAlreadyClaimed means another relay attempt holds the signal's
	// in-flight claim; the caller takes no action.
	ErrAlreadyClaimed = errors.New("signal claimed by another relay attempt")
)

// Relay drives the ledger transaction lifecycle for one signal:
// assemble -> sign -> submit -> await receipt. The submitting window is not
// a persisted status; it is guarded by the store-level signal claim.
type Relay struct {
	store  store.Store
	client LedgerClient
	signer *Signer
	cfg    config.OracleConfig

	// Submissions from one credential are serialized at the
	// nonce-acquisition point so concurrent relays for different signals
	// cannot collide on a nonce.
	nonceMu sync.Mutex
}

// NewRelay creates a Relay. client and signer may be nil when the oracle is
// disabled.
func NewRelay(st store.Store, client LedgerClient, signer *Signer, cfg config.OracleConfig) *Relay {
	return &Relay{store: st, client: client, signer: signer, cfg: cfg}
}

// Enabled reports whether transmissions are attempted at all.
func (r *Relay) Enabled() bool {
	return r.cfg.Enabled
}

// Send runs one transmission attempt for the signal and returns the
// confirmed transaction hash. Exactly one of these outcomes holds on
// return:
//   - ErrRelayDisabled: nothing was attempted, the signal stays pending.
//   - ErrAlreadyClaimed: another attempt is in flight, nothing was done.
//   - nil: the signal is sent with tx_hash set and tx_confirmed true.
//   - any other error: the signal and attempt failed; tx_hash is recorded
//     when the submission reached the network.
func (r *Relay) Send(ctx context.Context, sig *models.Signal) (string, error) {
	if !r.cfg.Enabled {
		return "", ErrRelayDisabled
	}

	// Claim lease outlives the longest possible confirmation wait.
	claimed, err := r.store.ClaimSignalForSend(ctx, sig.ID, 2*r.cfg.ConfirmTimeout)
	if err != nil {
		return "", fmt.Errorf("claim signal %s: %w", sig.ID, err)
	}
	if !claimed {
		return "", ErrAlreadyClaimed
	}

	txHash, err := r.transmit(ctx, sig)
	if err != nil {
		var reached *string
		if txHash != "" {
			reached = &txHash
		}
		if markErr := r.store.MarkSignalFailed(ctx, sig.ID, reached); markErr != nil {
			slog.Error("mark signal failed", "signal_id", sig.ID, "error", markErr)
		}
		return txHash, err
	}

	if err := r.store.MarkSignalSent(ctx, sig.ID, txHash); err != nil {
		return txHash, fmt.Errorf("mark signal sent: %w", err)
	}

	slog.Info("signal relayed", "signal_id", sig.ID, "tx_hash", txHash, "severity", sig.Severity)
	return txHash, nil
}

// transmit performs assemble/sign/submit/await. It returns the tx hash as
// soon as the submission reaches the network, even when a later step fails.
func (r *Relay) transmit(ctx context.Context, sig *models.Signal) (string, error) {
	analysis, err := r.store.GetAnalysisResult(ctx, sig.AnalysisResultID)
	if err != nil {
		return "", fmt.Errorf("load analysis result %s: %w", sig.AnalysisResultID, err)
	}

	payload, err := buildPayload(analysis.ID, models.SeverityOrdinal(sig.Severity),
		analysis.Metrics, r.cfg.MetricsCap, time.Now())
	if err != nil {
		return "", fmt.Errorf("assemble payload: %w", err)
	}

	payloadBytes, err := payload.Bytes()
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	// Nonce must be read immediately before submission; the mutex keeps
	// the read-submit pair atomic per credential.
	r.nonceMu.Lock()
	defer r.nonceMu.Unlock()

	nonce, err := r.client.PendingNonce(ctx, r.signer.Address())
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}

	tx := SignedTx{
		From:     r.signer.Address(),
		Contract: r.cfg.ContractAddr,
		ChainID:  r.cfg.ChainID,
		Nonce:    nonce,
		Payload:  payload,
		Sig:      r.signer.Sign(payloadBytes),
	}

	txHash, err := r.client.Submit(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("submit transaction: %w", err)
	}

	receipt, err := r.client.AwaitReceipt(ctx, txHash, r.cfg.ConfirmTimeout)
	if err != nil {
		return txHash, fmt.Errorf("await receipt for %s: %w", txHash, err)
	}
	if receipt.Status != ReceiptSuccess {
		return txHash, fmt.Errorf("transaction %s confirmed with status %q", txHash, receipt.Status)
	}

	return txHash, nil
}
