package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity levels for analysis results, ordered low to critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var severityOrdinals = map[string]uint8{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// SeverityOrdinal maps a severity to its fixed numeric wire value
// (low=1, medium=2, high=3, critical=4). Unknown severities map to 1.
func SeverityOrdinal(severity string) uint8 {
	if ord, ok := severityOrdinals[severity]; ok {
		return ord
	}
	return 1
}

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s string) bool {
	_, ok := severityOrdinals[s]
	return ok
}

// AnalysisResult holds one category's analysis output for a dataset.
// Immutable once created.
type AnalysisResult struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	DatasetID    uuid.UUID       `db:"dataset_id"    json:"dataset_id"`
	Category     string          `db:"category"      json:"category"`
	Metrics      json.RawMessage `db:"metrics"       json:"metrics"`
	Insights     json.RawMessage `db:"insights"      json:"insights,omitempty"`
	QualityScore float64         `db:"quality_score" json:"quality_score"`
	Severity     string          `db:"severity"      json:"severity"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
}
