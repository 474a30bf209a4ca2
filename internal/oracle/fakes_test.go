package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// fakeStore implements the small slice of store.Store the relay and gate
// touch, with the same conditional-update semantics as the real store.
// Unimplemented methods panic through the embedded nil interface.
type fakeStore struct {
	store.Store

	mu       sync.Mutex
	signals  map[uuid.UUID]*models.Signal
	analyses map[uuid.UUID]*models.AnalysisResult
	jobs     []*models.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		signals:  make(map[uuid.UUID]*models.Signal),
		analyses: make(map[uuid.UUID]*models.AnalysisResult),
	}
}

func (s *fakeStore) addAnalysis(result *models.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[result.ID] = result
}

func (s *fakeStore) addSignal(sig *models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sig
	s.signals[sig.ID] = &cp
}

func (s *fakeStore) signal(id uuid.UUID) *models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.signals[id]
	return &cp
}

func (s *fakeStore) GetAnalysisResult(_ context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.analyses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
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
	sig.ClaimedAt = nil
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
	sig.ClaimedAt = nil
	return nil
}

func (s *fakeStore) ResetSignalForRetry(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return store.ErrNotFound
	}
	if sig.Status == models.SignalStatusSent {
		return store.ErrSignalNotRetryable
	}
	sig.Status = models.SignalStatusPending
	sig.TxHash = nil
	sig.TxConfirmed = false
	sig.SentAt = nil
	sig.ClaimedAt = nil
	return nil
}

func (s *fakeStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// fakeQueue records enqueued wake-ups.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
	failWith error
}

func (q *fakeQueue) Enqueue(_ context.Context, jobType string, _ uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return q.failWith
	}
	q.enqueued = append(q.enqueued, jobType)
	return nil
}

func (q *fakeQueue) Dequeue(_ context.Context, _ string, _ time.Duration) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (q *fakeQueue) Ping(_ context.Context) error { return nil }
func (q *fakeQueue) Close() error                 { return nil }

// fakeLedger is a scripted LedgerClient.
type fakeLedger struct {
	mu         sync.Mutex
	nonce      uint64
	nonceErr   error
	submitErr  error
	receiptErr error
	receipt    *Receipt
	submitted  []SignedTx
}

func (l *fakeLedger) PendingNonce(_ context.Context, _ string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.nonceErr != nil {
		return 0, l.nonceErr
	}
	return l.nonce, nil
}

func (l *fakeLedger) Submit(_ context.Context, tx SignedTx) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.submitErr != nil {
		return "", l.submitErr
	}
	l.submitted = append(l.submitted, tx)
	l.nonce++
	return "0xhash", nil
}

func (l *fakeLedger) AwaitReceipt(_ context.Context, txHash string, _ time.Duration) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.receiptErr != nil {
		return nil, l.receiptErr
	}
	if l.receipt != nil {
		return l.receipt, nil
	}
	return &Receipt{TxHash: txHash, Status: ReceiptSuccess, BlockNumber: 7}, nil
}

func (l *fakeLedger) submissions() []SignedTx {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SignedTx(nil), l.submitted...)
}
