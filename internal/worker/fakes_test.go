package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/analyze"
	"github.com/worldmind/pipeline/internal/extract"
	"github.com/worldmind/pipeline/internal/oracle"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// fakeStore implements the store methods the executors and pool touch.
// Unimplemented methods panic through the embedded nil interface.
type fakeStore struct {
	store.Store

	mu        sync.Mutex
	sources   map[uuid.UUID]*models.Source
	datasets  map[uuid.UUID]*models.Dataset
	records   map[string]*models.Record // keyed by content hash
	analyses  []*models.AnalysisResult
	signals   map[uuid.UUID]*models.Signal
	jobs      map[uuid.UUID]*models.Job
	pending   []*models.Job
	progress  []float64
	refreshed map[uuid.UUID]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources:   make(map[uuid.UUID]*models.Source),
		datasets:  make(map[uuid.UUID]*models.Dataset),
		records:   make(map[string]*models.Record),
		signals:   make(map[uuid.UUID]*models.Signal),
		jobs:      make(map[uuid.UUID]*models.Job),
		refreshed: make(map[uuid.UUID]int),
	}
}

func (s *fakeStore) GetSource(_ context.Context, id uuid.UUID) (*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return src, nil
}

func (s *fakeStore) GetDataset(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (s *fakeStore) InsertRecordIfNew(_ context.Context, rec *models.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ContentHash]; exists {
		return false, nil
	}
	s.records[rec.ContentHash] = rec
	return true, nil
}

func (s *fakeStore) ListRecordsBySources(_ context.Context, sourceIDs []uuid.UUID, _ int) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Record
	for _, rec := range s.records {
		for _, id := range sourceIDs {
			if rec.SourceID == id {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) CreateAnalysisResult(_ context.Context, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses = append(s.analyses, result)
	return nil
}

func (s *fakeStore) GetAnalysisResult(_ context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.analyses {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) TouchDatasetRefreshed(_ context.Context, id uuid.UUID, rowCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed[id] = rowCount
	return nil
}

func (s *fakeStore) CreateSignal(_ context.Context, sig *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.signals {
		if existing.AnalysisResultID == sig.AnalysisResultID {
			return store.ErrDuplicateKey
		}
	}
	cp := *sig
	s.signals[sig.ID] = &cp
	return nil
}

func (s *fakeStore) GetSignal(_ context.Context, id uuid.UUID) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sig
	return &cp, nil
}

func (s *fakeStore) ClaimSignalForSend(_ context.Context, id uuid.UUID, claimLease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok || sig.Status != models.SignalStatusPending {
		return false, nil
	}
	if sig.ClaimedAt != nil && time.Since(*sig.ClaimedAt) < claimLease {
		return false, nil
	}
	now := time.Now().UTC()
	sig.ClaimedAt = &now
	return true, nil
}

func (s *fakeStore) MarkSignalSent(_ context.Context, id uuid.UUID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok || sig.Status != models.SignalStatusPending {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	sig.Status = models.SignalStatusSent
	sig.TxHash = &txHash
	sig.TxConfirmed = true
	sig.SentAt = &now
	return nil
}

func (s *fakeStore) MarkSignalFailed(_ context.Context, id uuid.UUID, txHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok || sig.Status != models.SignalStatusPending {
		return store.ErrNotFound
	}
	sig.Status = models.SignalStatusFailed
	if txHash != nil {
		sig.TxHash = txHash
	}
	return nil
}

func (s *fakeStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.pending = append(s.pending, job)
	return nil
}

func (s *fakeStore) ClaimJob(_ context.Context, jobType, workerID string, _ time.Duration) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, job := range s.pending {
		if job.Type != jobType {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		job.Status = models.JobStatusRunning
		job.WorkerID = &workerID
		return job, nil
	}
	return nil, nil
}

func (s *fakeStore) ReportJobProgress(_ context.Context, id uuid.UUID, workerID string, fraction float64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusRunning || job.WorkerID == nil || *job.WorkerID != workerID {
		return store.ErrJobStateViolation
	}
	job.Progress = fraction
	s.progress = append(s.progress, fraction)
	return nil
}

func (s *fakeStore) CompleteJob(_ context.Context, id uuid.UUID, workerID string, output json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusRunning || job.WorkerID == nil || *job.WorkerID != workerID {
		return store.ErrJobStateViolation
	}
	job.Status = models.JobStatusCompleted
	job.Progress = 1.0
	job.Output = output
	return nil
}

func (s *fakeStore) FailJob(_ context.Context, id uuid.UUID, workerID string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusRunning || job.WorkerID == nil || *job.WorkerID != workerID {
		return store.ErrJobStateViolation
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &msg
	return nil
}

func (s *fakeStore) job(id uuid.UUID) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// fakeExtractor returns a scripted sequence of outcomes, one per call.
type fakeExtractor struct {
	mu       sync.Mutex
	outcomes []func() ([]extract.Item, error)
	calls    int
}

func (e *fakeExtractor) Extract(_ context.Context, _ *models.Source) ([]extract.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.calls
	e.calls++
	if idx >= len(e.outcomes) {
		idx = len(e.outcomes) - 1
	}
	return e.outcomes[idx]()
}

// fakeAnalyzer returns fixed drafts or an error and counts invocations.
type fakeAnalyzer struct {
	mu     sync.Mutex
	drafts []analyze.ResultDraft
	err    error
	calls  int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ uuid.UUID, _ []*models.Record, _ []string) ([]analyze.ResultDraft, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.drafts, nil
}

// fakeQueue swallows wake-ups; the pool tests rely on claim polling.
type fakeQueue struct{}

func (fakeQueue) Enqueue(_ context.Context, _ string, _ uuid.UUID) error { return nil }
func (fakeQueue) Dequeue(_ context.Context, _ string, wait time.Duration) (uuid.UUID, error) {
	time.Sleep(wait)
	return uuid.Nil, nil
}
func (fakeQueue) Ping(_ context.Context) error { return nil }
func (fakeQueue) Close() error                 { return nil }

// fakeLedger always confirms successfully.
type fakeLedger struct{}

func (fakeLedger) PendingNonce(_ context.Context, _ string) (uint64, error) { return 1, nil }
func (fakeLedger) Submit(_ context.Context, _ oracle.SignedTx) (string, error) {
	return "0xhash", nil
}
func (fakeLedger) AwaitReceipt(_ context.Context, txHash string, _ time.Duration) (*oracle.Receipt, error) {
	return &oracle.Receipt{TxHash: txHash, Status: oracle.ReceiptSuccess}, nil
}
