package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job types, each served by its own dispatch queue.
const (
	JobTypeExtract = "extract"
	JobTypeAnalyze = "analyze"
	JobTypeRelay   = "relay-signal"
)

// ValidJobType reports whether t is a known job type.
func ValidJobType(t string) bool {
	return t == JobTypeExtract || t == JobTypeAnalyze || t == JobTypeRelay
}

// Job tracks a unit of asynchronous background work. The API returns a job id
// on submission; clients poll until status is completed or failed. A job is
// claimed by exactly one worker at a time; the claim carries a lease so that
// work orphaned by a crashed worker becomes reclaimable.
type Job struct {
	ID             uuid.UUID       `db:"id"               json:"id"`
	Type           string          `db:"type"             json:"type"`
	Status         string          `db:"status"           json:"status"`
	Progress       float64         `db:"progress"         json:"progress"`
	Input          json.RawMessage `db:"input"            json:"input,omitempty"`
	Output         json.RawMessage `db:"output"           json:"output,omitempty"`
	ErrorMessage   *string         `db:"error_message"    json:"error_message,omitempty"`
	WorkerID       *string         `db:"worker_id"        json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time      `db:"lease_expires_at" json:"-"`
	CreatedAt      time.Time       `db:"created_at"       json:"created_at"`
	StartedAt      *time.Time      `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at"     json:"completed_at,omitempty"`
}

// Typed input payloads, one shape per job type. They share the jobs.input
// JSONB column; the job type tags which shape applies.

type ExtractInput struct {
	SourceID uuid.UUID `json:"source_id"`
}

type AnalyzeInput struct {
	DatasetID  uuid.UUID `json:"dataset_id"`
	Categories []string  `json:"categories,omitempty"`
}

type RelayInput struct {
	SignalID uuid.UUID `json:"signal_id"`
}

// Typed output payloads, set only on completion.

type ExtractOutput struct {
	RecordsExtracted int `json:"records_extracted"`
	RecordsNew       int `json:"records_new"`
	RecordsDuplicate int `json:"records_duplicate"`
}

type AnalyzeOutput struct {
	AnalysesCreated int      `json:"analyses_created"`
	Categories      []string `json:"categories"`
}

type RelayOutput struct {
	TxHash   string `json:"tx_hash,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}
