package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/analyze"
	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

const maxDatasetRecords = 50000

// AnalyzeExecutor serves analysis jobs: load the dataset's records, call
// the analysis collaborator once (no retry), persist the results, and feed
// each one through the signal gate.
type AnalyzeExecutor struct {
	store    store.Store
	analyzer analyze.Analyzer
	gate     *oracle.Gate
}

// NewAnalyzeExecutor creates an AnalyzeExecutor.
func NewAnalyzeExecutor(st store.Store, an analyze.Analyzer, gate *oracle.Gate) *AnalyzeExecutor {
	return &AnalyzeExecutor{store: st, analyzer: an, gate: gate}
}

func (e *AnalyzeExecutor) Type() string { return models.JobTypeAnalyze }

func (e *AnalyzeExecutor) Execute(ctx context.Context, job *models.Job, report ProgressFunc) (json.RawMessage, error) {
	var input models.AnalyzeInput
	if err := json.Unmarshal(job.Input, &input); err != nil {
		return nil, fmt.Errorf("decode analyze input: %w", err)
	}

	dataset, err := e.store.GetDataset(ctx, input.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", input.DatasetID, err)
	}

	records, err := e.store.ListRecordsBySources(ctx, dataset.SourceIDs, maxDatasetRecords)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records found for dataset %s", dataset.ID)
	}

	if err := report(ctx, 0.2); err != nil {
		return nil, err
	}

	drafts, err := e.analyzer.Analyze(ctx, dataset.ID, records, input.Categories)
	if err != nil {
		return nil, err
	}

	if err := report(ctx, 0.8); err != nil {
		return nil, err
	}

	categories := make([]string, 0, len(drafts))
	for _, d := range drafts {
		result := &models.AnalysisResult{
			ID:           uuid.New(),
			DatasetID:    dataset.ID,
			Category:     d.Category,
			Metrics:      d.Metrics,
			Insights:     d.Insights,
			QualityScore: d.QualityScore,
			Severity:     d.Severity,
			CreatedAt:    time.Now().UTC(),
		}
		if err := e.store.CreateAnalysisResult(ctx, result); err != nil {
			return nil, fmt.Errorf("persist analysis result: %w", err)
		}
		categories = append(categories, d.Category)

		// Gating is best-effort here; a gate failure must not lose the
		// persisted analysis, and the result can be signalled manually.
		if _, err := e.gate.MaybeSignal(ctx, result); err != nil {
			slog.Error("signal gate", "analysis_result_id", result.ID, "error", err)
		}
	}

	if err := e.store.TouchDatasetRefreshed(ctx, dataset.ID, len(records)); err != nil {
		slog.Warn("touch dataset", "dataset_id", dataset.ID, "error", err)
	}

	return json.Marshal(models.AnalyzeOutput{
		AnalysesCreated: len(drafts),
		Categories:      categories,
	})
}
