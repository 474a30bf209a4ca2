package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/worldmind/pipeline/pkg/models"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrJobStateViolation is returned when a mutation is attempted on a
	// job that is not running or not owned by the caller. This is a logic
	// error, never silently ignored.
	ErrJobStateViolation = errors.New("job state violation")

	// ErrSignalNotRetryable is returned when a retry is requested for a
	// signal that is already sent.
	ErrSignalNotRetryable = errors.New("signal is not retryable")
)

// Store is the data access interface. All database operations go through
// here; cross-worker coordination is expressed entirely through the atomic
// conditional updates it provides.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	CreateSource(ctx context.Context, source *models.Source) error
	GetSource(ctx context.Context, id uuid.UUID) (*models.Source, error)
	ListSources(ctx context.Context) ([]*models.Source, error)

	CreateDataset(ctx context.Context, dataset *models.Dataset) error
	GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	ListDatasets(ctx context.Context) ([]*models.Dataset, error)
	TouchDatasetRefreshed(ctx context.Context, id uuid.UUID, rowCount int) error

	// InsertRecordIfNew inserts a record unless one with the same content
	// hash already exists. Returns false for a duplicate; duplicates are a
	// normal outcome, not an error.
	InsertRecordIfNew(ctx context.Context, rec *models.Record) (bool, error)
	ListRecordsBySources(ctx context.Context, sourceIDs []uuid.UUID, limit int) ([]*models.Record, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)

	// ClaimJob atomically marks the oldest eligible job of the given type
	// as running, owned by workerID, with a lease. Eligible means pending,
	// or running with an expired lease (orphaned by a dead worker).
	// Returns (nil, nil) when no job is eligible.
	ClaimJob(ctx context.Context, jobType, workerID string, lease time.Duration) (*models.Job, error)

	// ReportJobProgress records monotonically non-decreasing progress and
	// extends the claim lease. Fails with ErrJobStateViolation if the job
	// is not running, not owned by workerID, or progress would regress.
	ReportJobProgress(ctx context.Context, id uuid.UUID, workerID string, progress float64, lease time.Duration) error
	CompleteJob(ctx context.Context, id uuid.UUID, workerID string, output json.RawMessage) error
	FailJob(ctx context.Context, id uuid.UUID, workerID string, errMsg string) error

	// DeleteTerminalJobsBefore deletes completed/failed jobs created before
	// cutoff. Pending and running jobs are never deleted.
	DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CreateAnalysisResult(ctx context.Context, result *models.AnalysisResult) error
	GetAnalysisResult(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error)

	// CreateSignal inserts a signal; ErrDuplicateKey if one already exists
	// for the same analysis result.
	CreateSignal(ctx context.Context, signal *models.Signal) error
	GetSignal(ctx context.Context, id uuid.UUID) (*models.Signal, error)
	GetSignalByAnalysisResult(ctx context.Context, analysisResultID uuid.UUID) (*models.Signal, error)
	ListSignals(ctx context.Context, filter SignalFilter) ([]*models.Signal, int, error)
	ListPendingSignalsForRelay(ctx context.Context, limit int) ([]*models.Signal, error)

	// ClaimSignalForSend is the compare-and-swap guard for the in-flight
	// submitting window: it succeeds only if the signal is still pending
	// and no unexpired claim exists, so at most one caller submits a
	// transaction for a given attempt.
	ClaimSignalForSend(ctx context.Context, id uuid.UUID, claimLease time.Duration) (bool, error)

	// MarkSignalSent transitions pending -> sent with the confirmed tx
	// hash. A no-op returning ErrNotFound if the signal is no longer
	// pending.
	MarkSignalSent(ctx context.Context, id uuid.UUID, txHash string) error

	// MarkSignalFailed transitions pending -> failed. txHash is recorded
	// when the submission reached the network before failing.
	MarkSignalFailed(ctx context.Context, id uuid.UUID, txHash *string) error

	// ResetSignalForRetry returns a pending or failed signal to a clean
	// pending state, clearing tx_hash, tx_confirmed, sent_at and any
	// claim. A sent signal is never mutated: ErrSignalNotRetryable.
	ResetSignalForRetry(ctx context.Context, id uuid.UUID) error

	CountSignalsByStatus(ctx context.Context) (map[string]int, error)
	CountSignalsBySeverity(ctx context.Context) (map[string]int, error)
	CountSignalsSince(ctx context.Context, since time.Time) (int, error)
}

type JobFilter struct {
	Status string
	Type   string
	Since  time.Time
	Page   int
	Limit  int
}

type SignalFilter struct {
	Status   string
	Severity string
	Since    time.Time
	Page     int
	Limit    int
}
