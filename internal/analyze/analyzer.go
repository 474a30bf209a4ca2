// Package analyze defines the analysis collaborator contract. The engine
// that computes metrics and severity is external; this package only carries
// records to it and results back.
package analyze

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/pkg/models"
)

// ErrAnalysisFailed wraps any collaborator-side failure. Analysis is never
// retried: re-running a partial statistical computation is not safe to
// resume blindly, so a failure fails the owning job immediately.
var ErrAnalysisFailed = errors.New("analysis failed")

// ResultDraft is one analysis outcome before persistence.
type ResultDraft struct {
	Category     string          `json:"category"`
	Metrics      json.RawMessage `json:"metrics"`
	Insights     json.RawMessage `json:"insights,omitempty"`
	QualityScore float64         `json:"quality_score"`
	Severity     string          `json:"severity"`
}

// Analyzer is the external analysis collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, datasetID uuid.UUID, records []*models.Record, categories []string) ([]ResultDraft, error)
}
