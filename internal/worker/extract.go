package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/extract"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// ExtractExecutor serves extraction jobs: fetch from the source, write
// deduplicated records, report counts. Transient collaborator failures are
// retried with capped exponential backoff inside the single job execution;
// fatal ones fail the job immediately.
type ExtractExecutor struct {
	store     store.Store
	extractor extract.Extractor
	cfg       config.ExtractConfig
}

// NewExtractExecutor creates an ExtractExecutor.
func NewExtractExecutor(st store.Store, ex extract.Extractor, cfg config.ExtractConfig) *ExtractExecutor {
	return &ExtractExecutor{store: st, extractor: ex, cfg: cfg}
}

func (e *ExtractExecutor) Type() string { return models.JobTypeExtract }

func (e *ExtractExecutor) Execute(ctx context.Context, job *models.Job, report ProgressFunc) (json.RawMessage, error) {
	var input models.ExtractInput
	if err := json.Unmarshal(job.Input, &input); err != nil {
		return nil, fmt.Errorf("decode extract input: %w", err)
	}

	source, err := e.store.GetSource(ctx, input.SourceID)
	if err != nil {
		return nil, fmt.Errorf("load source %s: %w", input.SourceID, err)
	}
	if !source.Enabled {
		return nil, fmt.Errorf("source %s is disabled", source.ID)
	}

	items, err := e.extractWithRetry(ctx, source)
	if err != nil {
		return nil, err
	}

	if err := report(ctx, 0.5); err != nil {
		return nil, err
	}

	platform := source.Kind
	if source.Platform != nil {
		platform = *source.Platform
	}

	var newCount, dupCount int
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode item payload: %w", err)
		}
		inserted, err := e.store.InsertRecordIfNew(ctx, &models.Record{
			ID:          uuid.New(),
			SourceID:    source.ID,
			Platform:    platform,
			Payload:     payload,
			ContentHash: extract.ContentHash(item),
			IngestedAt:  time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("insert record: %w", err)
		}
		if inserted {
			newCount++
		} else {
			dupCount++
		}
	}

	return json.Marshal(models.ExtractOutput{
		RecordsExtracted: len(items),
		RecordsNew:       newCount,
		RecordsDuplicate: dupCount,
	})
}

// extractWithRetry retries ErrTransient failures up to the configured
// attempt cap; anything else stops immediately.
func (e *ExtractExecutor) extractWithRetry(ctx context.Context, source *models.Source) ([]extract.Item, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.RetryBaseDelay

	var items []extract.Item
	op := func() error {
		var err error
		items, err = e.extractor.Extract(ctx, source)
		if err != nil && !errors.Is(err, extract.ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(e.cfg.MaxRetries)), ctx))
	if err != nil {
		return nil, fmt.Errorf("extract from source %s: %w", source.ID, err)
	}
	return items, nil
}
