package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldmind/pipeline/internal/analyze"
	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/extract"
	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

const relaySeed = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

func noopReport(_ context.Context, _ float64) error { return nil }

func progressRecorder(fractions *[]float64) ProgressFunc {
	return func(_ context.Context, fraction float64) error {
		*fractions = append(*fractions, fraction)
		return nil
	}
}

func seedSource(st *fakeStore, enabled bool) *models.Source {
	src := &models.Source{
		ID:      uuid.New(),
		Name:    "test-source",
		Kind:    models.SourceKindWeb,
		Config:  json.RawMessage(`{"urls": ["https://example.com"]}`),
		Enabled: enabled,
	}
	st.sources[src.ID] = src
	return src
}

func extractJob(t *testing.T, sourceID uuid.UUID) *models.Job {
	t.Helper()
	input, err := json.Marshal(models.ExtractInput{SourceID: sourceID})
	require.NoError(t, err)
	return &models.Job{
		ID:     uuid.New(),
		Type:   models.JobTypeExtract,
		Status: models.JobStatusRunning,
		Input:  input,
	}
}

func items(titles ...string) []extract.Item {
	out := make([]extract.Item, 0, len(titles))
	for _, title := range titles {
		out = append(out, extract.Item{Title: title, Body: "body of " + title})
	}
	return out
}

func TestExtractExecutor_DedupCounts(t *testing.T) {
	st := newFakeStore()
	src := seedSource(st, true)

	// Ten items, the last three repeating the first three.
	batch := items("a", "b", "c", "d", "e", "f", "g", "a", "b", "c")
	ex := &fakeExtractor{outcomes: []func() ([]extract.Item, error){
		func() ([]extract.Item, error) { return batch, nil },
	}}

	exec := NewExtractExecutor(st, ex, config.ExtractConfig{MaxRetries: 0, RetryBaseDelay: time.Millisecond})

	var fractions []float64
	raw, err := exec.Execute(context.Background(), extractJob(t, src.ID), progressRecorder(&fractions))
	require.NoError(t, err)

	var out models.ExtractOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 10, out.RecordsExtracted)
	assert.Equal(t, 7, out.RecordsNew)
	assert.Equal(t, 3, out.RecordsDuplicate)

	assert.Len(t, st.records, 7)
	assert.Contains(t, fractions, 0.5)
	for _, rec := range st.records {
		assert.Equal(t, src.ID, rec.SourceID)
		assert.Equal(t, models.SourceKindWeb, rec.Platform)
	}
}

func TestExtractExecutor_PlatformOverridesKind(t *testing.T) {
	st := newFakeStore()
	src := seedSource(st, true)
	platform := "mastodon"
	src.Platform = &platform

	ex := &fakeExtractor{outcomes: []func() ([]extract.Item, error){
		func() ([]extract.Item, error) { return items("a"), nil },
	}}
	exec := NewExtractExecutor(st, ex, config.ExtractConfig{RetryBaseDelay: time.Millisecond})

	_, err := exec.Execute(context.Background(), extractJob(t, src.ID), noopReport)
	require.NoError(t, err)
	for _, rec := range st.records {
		assert.Equal(t, "mastodon", rec.Platform)
	}
}

func TestExtractExecutor_TransientRetryThenSuccess(t *testing.T) {
	st := newFakeStore()
	src := seedSource(st, true)

	transient := func() ([]extract.Item, error) {
		return nil, fmt.Errorf("%w: 503", extract.ErrTransient)
	}
	ex := &fakeExtractor{outcomes: []func() ([]extract.Item, error){
		transient,
		transient,
		func() ([]extract.Item, error) { return items("a", "b"), nil },
	}}

	exec := NewExtractExecutor(st, ex, config.ExtractConfig{MaxRetries: 3, RetryBaseDelay: time.Millisecond})

	raw, err := exec.Execute(context.Background(), extractJob(t, src.ID), noopReport)
	require.NoError(t, err)

	var out models.ExtractOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 2, out.RecordsNew)
	assert.Equal(t, 3, ex.calls)
}

func TestExtractExecutor_FatalFailsImmediately(t *testing.T) {
	st := newFakeStore()
	src := seedSource(st, true)

	ex := &fakeExtractor{outcomes: []func() ([]extract.Item, error){
		func() ([]extract.Item, error) { return nil, fmt.Errorf("%w: 404", extract.ErrFatal) },
	}}

	exec := NewExtractExecutor(st, ex, config.ExtractConfig{MaxRetries: 5, RetryBaseDelay: time.Millisecond})

	_, err := exec.Execute(context.Background(), extractJob(t, src.ID), noopReport)
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrFatal)
	assert.Equal(t, 1, ex.calls)
	assert.Empty(t, st.records)
}

func TestExtractExecutor_RetriesExhausted(t *testing.T) {
	st := newFakeStore()
	src := seedSource(st, true)

	ex := &fakeExtractor{outcomes: []func() ([]extract.Item, error){
		func() ([]extract.Item, error) { return nil, extract.ErrTransient },
	}}

	exec := NewExtractExecutor(st, ex, config.ExtractConfig{MaxRetries: 2, RetryBaseDelay: time.Millisecond})

	_, err := exec.Execute(context.Background(), extractJob(t, src.ID), noopReport)
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrTransient)
	assert.Equal(t, 3, ex.calls)
}

func TestExtractExecutor_DisabledSource(t *testing.T) {
	st := newFakeStore()
	src := seedSource(st, false)
	ex := &fakeExtractor{outcomes: []func() ([]extract.Item, error){
		func() ([]extract.Item, error) { return items("a"), nil },
	}}
	exec := NewExtractExecutor(st, ex, config.ExtractConfig{RetryBaseDelay: time.Millisecond})

	_, err := exec.Execute(context.Background(), extractJob(t, src.ID), noopReport)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
	assert.Equal(t, 0, ex.calls)
}

func TestExtractExecutor_UnknownSource(t *testing.T) {
	st := newFakeStore()
	exec := NewExtractExecutor(st, &fakeExtractor{}, config.ExtractConfig{RetryBaseDelay: time.Millisecond})

	_, err := exec.Execute(context.Background(), extractJob(t, uuid.New()), noopReport)
	require.Error(t, err)
}

func seedDataset(st *fakeStore, recordCount int) *models.Dataset {
	src := seedSource(st, true)
	for i := 0; i < recordCount; i++ {
		hash := fmt.Sprintf("hash-%d", i)
		st.records[hash] = &models.Record{
			ID:          uuid.New(),
			SourceID:    src.ID,
			Platform:    src.Kind,
			Payload:     json.RawMessage(`{}`),
			ContentHash: hash,
			IngestedAt:  time.Now().UTC(),
		}
	}
	ds := &models.Dataset{
		ID:        uuid.New(),
		Name:      "test-dataset",
		SourceIDs: []uuid.UUID{src.ID},
	}
	st.datasets[ds.ID] = ds
	return ds
}

func analyzeJob(t *testing.T, datasetID uuid.UUID, categories ...string) *models.Job {
	t.Helper()
	input, err := json.Marshal(models.AnalyzeInput{DatasetID: datasetID, Categories: categories})
	require.NoError(t, err)
	return &models.Job{
		ID:     uuid.New(),
		Type:   models.JobTypeAnalyze,
		Status: models.JobStatusRunning,
		Input:  input,
	}
}

func TestAnalyzeExecutor_PersistsAndGates(t *testing.T) {
	st := newFakeStore()
	ds := seedDataset(st, 3)

	an := &fakeAnalyzer{drafts: []analyze.ResultDraft{
		{Category: "sentiment", Metrics: json.RawMessage(`{"score": 0.4}`), QualityScore: 0.9, Severity: models.SeverityLow},
		{Category: "anomaly", Metrics: json.RawMessage(`{"score": 0.97}`), QualityScore: 0.8, Severity: models.SeverityHigh},
	}}
	gate := oracle.NewGate(st, fakeQueue{}, config.OracleConfig{MetricsCap: 5})
	exec := NewAnalyzeExecutor(st, an, gate)

	var fractions []float64
	raw, err := exec.Execute(context.Background(), analyzeJob(t, ds.ID, "sentiment", "anomaly"), progressRecorder(&fractions))
	require.NoError(t, err)

	var out models.AnalyzeOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, 2, out.AnalysesCreated)
	assert.ElementsMatch(t, []string{"sentiment", "anomaly"}, out.Categories)

	assert.Equal(t, 1, an.calls)
	assert.Len(t, st.analyses, 2)
	assert.Equal(t, []float64{0.2, 0.8}, fractions)

	// Only the high severity result crosses the gate.
	require.Len(t, st.signals, 1)
	for _, sig := range st.signals {
		assert.Equal(t, models.SeverityHigh, sig.Severity)
		assert.Equal(t, models.SignalStatusPending, sig.Status)
	}
	// And creating the signal dispatched a relay job.
	relayJobs := 0
	for _, job := range st.jobs {
		if job.Type == models.JobTypeRelay {
			relayJobs++
		}
	}
	assert.Equal(t, 1, relayJobs)

	assert.Equal(t, 3, st.refreshed[ds.ID])
}

func TestAnalyzeExecutor_FailureNotRetried(t *testing.T) {
	st := newFakeStore()
	ds := seedDataset(st, 2)

	an := &fakeAnalyzer{err: fmt.Errorf("%w: engine exploded", analyze.ErrAnalysisFailed)}
	gate := oracle.NewGate(st, fakeQueue{}, config.OracleConfig{MetricsCap: 5})
	exec := NewAnalyzeExecutor(st, an, gate)

	_, err := exec.Execute(context.Background(), analyzeJob(t, ds.ID), noopReport)
	require.Error(t, err)
	assert.ErrorIs(t, err, analyze.ErrAnalysisFailed)
	assert.Equal(t, 1, an.calls)
	assert.Empty(t, st.analyses)
}

func TestAnalyzeExecutor_EmptyDataset(t *testing.T) {
	st := newFakeStore()
	ds := seedDataset(st, 0)

	an := &fakeAnalyzer{}
	gate := oracle.NewGate(st, fakeQueue{}, config.OracleConfig{MetricsCap: 5})
	exec := NewAnalyzeExecutor(st, an, gate)

	_, err := exec.Execute(context.Background(), analyzeJob(t, ds.ID), noopReport)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no records")
	assert.Equal(t, 0, an.calls)
}

func relayFixture(t *testing.T, st *fakeStore, enabled bool) *oracle.Relay {
	t.Helper()
	signer, err := oracle.NewSigner(relaySeed)
	require.NoError(t, err)
	cfg := config.OracleConfig{
		Enabled:        enabled,
		ContractAddr:   "0x00000000000000000000000000000000000000aa",
		ChainID:        1337,
		ConfirmTimeout: time.Minute,
		MetricsCap:     5,
	}
	return oracle.NewRelay(st, fakeLedger{}, signer, cfg)
}

func seedSignal(st *fakeStore, status string) *models.Signal {
	result := &models.AnalysisResult{
		ID:           uuid.New(),
		DatasetID:    uuid.New(),
		Category:     "anomaly",
		Metrics:      json.RawMessage(`{"score": 0.99}`),
		QualityScore: 0.8,
		Severity:     models.SeverityCritical,
		CreatedAt:    time.Now().UTC(),
	}
	st.analyses = append(st.analyses, result)

	digest := "0xdeadbeef"
	sig := &models.Signal{
		ID:               uuid.New(),
		AnalysisResultID: result.ID,
		Severity:         result.Severity,
		SignalType:       models.SignalTypeAlert,
		Payload:          json.RawMessage(`{}`),
		PayloadDigest:    &digest,
		Status:           status,
		CreatedAt:        time.Now().UTC(),
	}
	st.signals[sig.ID] = sig
	return sig
}

func relayJob(t *testing.T, signalID uuid.UUID) *models.Job {
	t.Helper()
	input, err := json.Marshal(models.RelayInput{SignalID: signalID})
	require.NoError(t, err)
	return &models.Job{
		ID:     uuid.New(),
		Type:   models.JobTypeRelay,
		Status: models.JobStatusRunning,
		Input:  input,
	}
}

func TestRelayExecutor_Success(t *testing.T) {
	st := newFakeStore()
	sig := seedSignal(st, models.SignalStatusPending)
	exec := NewRelayExecutor(st, relayFixture(t, st, true))

	raw, err := exec.Execute(context.Background(), relayJob(t, sig.ID), noopReport)
	require.NoError(t, err)

	var out models.RelayOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "0xhash", out.TxHash)
	assert.False(t, out.Disabled)

	stored := st.signals[sig.ID]
	assert.Equal(t, models.SignalStatusSent, stored.Status)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, "0xhash", *stored.TxHash)
	assert.True(t, stored.TxConfirmed)
}

func TestRelayExecutor_AlreadyResolved(t *testing.T) {
	st := newFakeStore()
	sig := seedSignal(st, models.SignalStatusSent)
	txHash := "0xdone"
	sig.TxHash = &txHash

	// Disabled relay: if the executor reached Send the output would carry
	// the disabled marker instead of the existing hash.
	exec := NewRelayExecutor(st, relayFixture(t, st, false))

	raw, err := exec.Execute(context.Background(), relayJob(t, sig.ID), noopReport)
	require.NoError(t, err)

	var out models.RelayOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "0xdone", out.TxHash)
	assert.False(t, out.Disabled)
}

func TestRelayExecutor_Disabled(t *testing.T) {
	st := newFakeStore()
	sig := seedSignal(st, models.SignalStatusPending)
	exec := NewRelayExecutor(st, relayFixture(t, st, false))

	raw, err := exec.Execute(context.Background(), relayJob(t, sig.ID), noopReport)
	require.NoError(t, err)

	var out models.RelayOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.True(t, out.Disabled)
	assert.Equal(t, models.SignalStatusPending, st.signals[sig.ID].Status)
}

func TestRelayExecutor_ClaimedElsewhere(t *testing.T) {
	st := newFakeStore()
	sig := seedSignal(st, models.SignalStatusPending)
	now := time.Now().UTC()
	sig.ClaimedAt = &now

	exec := NewRelayExecutor(st, relayFixture(t, st, true))

	raw, err := exec.Execute(context.Background(), relayJob(t, sig.ID), noopReport)
	require.NoError(t, err)

	var out models.RelayOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Empty(t, out.TxHash)
	assert.Equal(t, models.SignalStatusPending, st.signals[sig.ID].Status)
}

func TestRelayExecutor_UnknownSignal(t *testing.T) {
	st := newFakeStore()
	exec := NewRelayExecutor(st, relayFixture(t, st, true))

	_, err := exec.Execute(context.Background(), relayJob(t, uuid.New()), noopReport)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
