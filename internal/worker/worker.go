// Package worker runs the dispatch-queue worker pools. Each pool serves one
// job type: it claims the oldest eligible job through the store's atomic
// conditional update, executes it, and records completion or failure. The
// redis queue only wakes workers early; losing a wake-up merely delays a
// claim until the next poll.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/internal/cache"
	"github.com/worldmind/pipeline/internal/config"
	"github.com/worldmind/pipeline/internal/queue"
	"github.com/worldmind/pipeline/internal/store"
	"github.com/worldmind/pipeline/pkg/models"
)

const jobStatusTTL = 30 * time.Minute

// ProgressFunc reports job progress in [0,1]. Progress never decreases while
// a job runs and reaches 1.0 only on completion.
type ProgressFunc func(ctx context.Context, fraction float64) error

// Executor runs one claimed job to completion or failure.
type Executor interface {
	Type() string
	Execute(ctx context.Context, job *models.Job, report ProgressFunc) (json.RawMessage, error)
}

// Pool runs n concurrent workers for one executor's job type.
type Pool struct {
	store    store.Store
	dispatch queue.Queue
	cache    cache.Cache
	exec     Executor
	size     int
	identity string
	cfg      config.WorkerConfig
}

// NewPool creates a worker pool. identity prefixes the per-worker ids that
// own job claims.
func NewPool(st store.Store, dispatch queue.Queue, ca cache.Cache, exec Executor, size int, identity string, cfg config.WorkerConfig) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		store:    st,
		dispatch: dispatch,
		cache:    ca,
		exec:     exec,
		size:     size,
		identity: identity,
		cfg:      cfg,
	}
}

// Run blocks until ctx is cancelled, serving jobs with p.size workers.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("%s-%s-%d", p.identity, p.exec.Type(), i)
		go func() {
			defer wg.Done()
			p.loop(ctx, workerID)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID string) {
	slog.Info("worker started", "worker_id", workerID, "queue", p.exec.Type())
	for {
		if ctx.Err() != nil {
			slog.Info("worker stopped", "worker_id", workerID)
			return
		}

		job, err := p.store.ClaimJob(ctx, p.exec.Type(), workerID, p.cfg.LeaseDuration)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("claim job", "worker_id", workerID, "error", err)
			sleepCtx(ctx, p.cfg.ClaimPoll)
			continue
		}
		if job == nil {
			// Nothing eligible; block on the dispatch queue until a
			// wake-up arrives or the poll interval elapses.
			if _, err := p.dispatch.Dequeue(ctx, p.exec.Type(), p.cfg.ClaimPoll); err != nil && ctx.Err() == nil {
				slog.Error("dequeue", "worker_id", workerID, "error", err)
				sleepCtx(ctx, p.cfg.ClaimPoll)
			}
			continue
		}

		p.runJob(ctx, workerID, job)
	}
}

// runJob executes one claimed job. Collaborator failures become a failed
// job, never a dead worker loop; panics are recovered the same way.
func (p *Pool) runJob(ctx context.Context, workerID string, job *models.Job) {
	slog.Info("job started", "job_id", job.ID, "type", job.Type, "worker_id", workerID)
	p.cacheStatus(ctx, job.ID, models.JobStatusRunning)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job execution", "job_id", job.ID, "panic", r)
			p.failJob(ctx, workerID, job, fmt.Sprintf("panic: %v", r))
		}
	}()

	report := func(ctx context.Context, fraction float64) error {
		return p.store.ReportJobProgress(ctx, job.ID, workerID, fraction, p.cfg.LeaseDuration)
	}

	output, err := p.exec.Execute(ctx, job, report)
	if err != nil {
		p.failJob(ctx, workerID, job, err.Error())
		return
	}

	if err := p.store.CompleteJob(ctx, job.ID, workerID, output); err != nil {
		// A state violation here means the claim was lost (lease expiry
		// plus reclaim); the job belongs to someone else now.
		slog.Error("complete job", "job_id", job.ID, "error", err)
		return
	}
	p.cacheStatus(ctx, job.ID, models.JobStatusCompleted)
	slog.Info("job completed", "job_id", job.ID, "type", job.Type)
}

func (p *Pool) failJob(ctx context.Context, workerID string, job *models.Job, msg string) {
	if err := p.store.FailJob(ctx, job.ID, workerID, msg); err != nil {
		if !errors.Is(err, store.ErrJobStateViolation) {
			slog.Error("fail job", "job_id", job.ID, "error", err)
		}
		return
	}
	p.cacheStatus(ctx, job.ID, models.JobStatusFailed)
	slog.Error("job failed", "job_id", job.ID, "type", job.Type, "error", msg)
}

func (p *Pool) cacheStatus(ctx context.Context, jobID uuid.UUID, status string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL); err != nil {
		slog.Warn("cache job status", "job_id", jobID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
