package handler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

// stubStore delegates to the configured functions; calling an unconfigured
// method panics through the embedded nil interface, which makes unexpected
// store access fail loudly.
type stubStore struct {
	store.Store

	getSource      func(id uuid.UUID) (*models.Source, error)
	getDataset     func(id uuid.UUID) (*models.Dataset, error)
	createJob      func(job *models.Job) error
	getJob         func(id uuid.UUID) (*models.Job, error)
	listJobs       func(filter store.JobFilter) ([]*models.Job, int, error)
	deleteTerminal func(cutoff time.Time) (int64, error)

	getAnalysisResult         func(id uuid.UUID) (*models.AnalysisResult, error)
	getSignal                 func(id uuid.UUID) (*models.Signal, error)
	getSignalByAnalysisResult func(id uuid.UUID) (*models.Signal, error)
	listSignals               func(filter store.SignalFilter) ([]*models.Signal, int, error)
	countByStatus             func() (map[string]int, error)
	countBySeverity           func() (map[string]int, error)
	countSince                func(since time.Time) (int, error)
}

func (s *stubStore) GetSource(_ context.Context, id uuid.UUID) (*models.Source, error) {
	return s.getSource(id)
}

func (s *stubStore) GetDataset(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.getDataset(id)
}

func (s *stubStore) CreateJob(_ context.Context, job *models.Job) error {
	return s.createJob(job)
}

func (s *stubStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	return s.getJob(id)
}

func (s *stubStore) ListJobs(_ context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	return s.listJobs(filter)
}

func (s *stubStore) DeleteTerminalJobsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return s.deleteTerminal(cutoff)
}

func (s *stubStore) GetAnalysisResult(_ context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	return s.getAnalysisResult(id)
}

func (s *stubStore) GetSignal(_ context.Context, id uuid.UUID) (*models.Signal, error) {
	return s.getSignal(id)
}

func (s *stubStore) GetSignalByAnalysisResult(_ context.Context, id uuid.UUID) (*models.Signal, error) {
	return s.getSignalByAnalysisResult(id)
}

func (s *stubStore) ListSignals(_ context.Context, filter store.SignalFilter) ([]*models.Signal, int, error) {
	return s.listSignals(filter)
}

func (s *stubStore) CountSignalsByStatus(_ context.Context) (map[string]int, error) {
	return s.countByStatus()
}

func (s *stubStore) CountSignalsBySeverity(_ context.Context) (map[string]int, error) {
	return s.countBySeverity()
}

func (s *stubStore) CountSignalsSince(_ context.Context, since time.Time) (int, error) {
	return s.countSince(since)
}

type stubQueue struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (q *stubQueue) Enqueue(_ context.Context, jobType string, _ uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, jobType)
	return nil
}

func (q *stubQueue) Dequeue(_ context.Context, _ string, _ time.Duration) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (q *stubQueue) Ping(_ context.Context) error { return nil }
func (q *stubQueue) Close() error                 { return nil }

type stubCache struct {
	status string
	ok     bool
	err    error
}

func (c *stubCache) Ping(_ context.Context) error { return nil }

func (c *stubCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}

func (c *stubCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return c.status, c.ok, c.err
}

func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (c *stubCache) Close() error { return nil }

type stubGater struct {
	maybeSignal func(result *models.AnalysisResult) (*models.Signal, error)
	retrySignal func(id uuid.UUID) error
}

func (g *stubGater) MaybeSignal(_ context.Context, result *models.AnalysisResult) (*models.Signal, error) {
	return g.maybeSignal(result)
}

func (g *stubGater) RetrySignal(_ context.Context, id uuid.UUID) error {
	return g.retrySignal(id)
}
