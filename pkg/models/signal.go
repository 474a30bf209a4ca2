package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	SignalStatusPending = "pending"
	SignalStatusSent    = "sent"
	SignalStatusFailed  = "failed"
)

const SignalTypeAlert = "alert"

// Signal is an intent to transmit an analysis outcome to the external
// ledger. Exactly one signal exists per analysis result. TxHash is set if
// and only if a submission attempt reached the network; a retry clears it
// and returns the signal to pending before any fresh attempt. ClaimedAt
// marks the in-flight submitting window so that the queue-triggered relay
// worker and the monitor sweep never both submit for the same attempt.
type Signal struct {
	ID               uuid.UUID       `db:"id"                 json:"id"`
	AnalysisResultID uuid.UUID       `db:"analysis_result_id" json:"analysis_result_id"`
	Severity         string          `db:"severity"           json:"severity"`
	SignalType       string          `db:"signal_type"        json:"signal_type"`
	Payload          json.RawMessage `db:"payload"            json:"payload,omitempty"`
	PayloadDigest    *string         `db:"payload_digest"     json:"payload_digest,omitempty"`
	Status           string          `db:"status"             json:"status"`
	TxHash           *string         `db:"tx_hash"            json:"tx_hash,omitempty"`
	TxConfirmed      bool            `db:"tx_confirmed"       json:"tx_confirmed"`
	ClaimedAt        *time.Time      `db:"claimed_at"         json:"-"`
	CreatedAt        time.Time       `db:"created_at"         json:"created_at"`
	SentAt           *time.Time      `db:"sent_at"            json:"sent_at,omitempty"`
}

// SignalPayload is the audit summary stored alongside the signal at
// creation time. MetricsSummary holds at most the configured number of
// metrics, chosen in sorted key order so retries produce the same digest.
type SignalPayload struct {
	DatasetID      uuid.UUID      `json:"dataset_id"`
	Category       string         `json:"category"`
	QualityScore   float64        `json:"quality_score"`
	MetricsSummary map[string]any `json:"metrics_summary"`
}
