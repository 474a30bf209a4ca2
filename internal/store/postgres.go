package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/worldmind/pipeline/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Sources ---

func (s *PostgresStore) CreateSource(ctx context.Context, source *models.Source) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sources (id, name, kind, platform, config, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		source.ID, source.Name, source.Kind, source.Platform, source.Config,
		source.Enabled, source.CreatedAt, source.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create source: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSource(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	var src models.Source
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, kind, platform, config, enabled, created_at, updated_at
		 FROM sources WHERE id = $1`, id,
	).Scan(&src.ID, &src.Name, &src.Kind, &src.Platform, &src.Config,
		&src.Enabled, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return &src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]*models.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, kind, platform, config, enabled, created_at, updated_at
		 FROM sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.Kind, &src.Platform, &src.Config,
			&src.Enabled, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, &src)
	}
	return sources, rows.Err()
}

// --- Datasets ---

func (s *PostgresStore) CreateDataset(ctx context.Context, dataset *models.Dataset) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO datasets (id, name, description, source_ids, row_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		dataset.ID, dataset.Name, dataset.Description, dataset.SourceIDs,
		dataset.RowCount, dataset.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create dataset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	var d models.Dataset
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, source_ids, row_count, created_at, last_refreshed_at
		 FROM datasets WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Description, &d.SourceIDs, &d.RowCount,
		&d.CreatedAt, &d.LastRefreshedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) ListDatasets(ctx context.Context) ([]*models.Dataset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, source_ids, row_count, created_at, last_refreshed_at
		 FROM datasets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		var d models.Dataset
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.SourceIDs, &d.RowCount,
			&d.CreatedAt, &d.LastRefreshedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, &d)
	}
	return datasets, rows.Err()
}

func (s *PostgresStore) TouchDatasetRefreshed(ctx context.Context, id uuid.UUID, rowCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE datasets SET last_refreshed_at = NOW(), row_count = $2 WHERE id = $1`, id, rowCount)
	if err != nil {
		return fmt.Errorf("touch dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Records ---

// InsertRecordIfNew relies on the unique index on content_hash for the
// atomic check-then-insert; there is no read-then-write window.
func (s *PostgresStore) InsertRecordIfNew(ctx context.Context, rec *models.Record) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO records (id, source_id, platform, payload, content_hash, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (content_hash) DO NOTHING`,
		rec.ID, rec.SourceID, rec.Platform, rec.Payload, rec.ContentHash, rec.IngestedAt)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListRecordsBySources(ctx context.Context, sourceIDs []uuid.UUID, limit int) ([]*models.Record, error) {
	if len(sourceIDs) == 0 {
		return []*models.Record{}, nil
	}
	if limit <= 0 {
		limit = 10000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, source_id, platform, payload, content_hash, ingested_at
		 FROM records WHERE source_id = ANY($1) ORDER BY ingested_at ASC LIMIT $2`,
		sourceIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.ID, &r.SourceID, &r.Platform, &r.Payload, &r.ContentHash, &r.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// --- Jobs ---

const jobColumns = `id, type, status, progress, input, output, error_message, worker_id, lease_expires_at, created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Type, &j.Status, &j.Progress, &j.Input, &j.Output,
		&j.ErrorMessage, &j.WorkerID, &j.LeaseExpiresAt, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, type, status, progress, input, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.Type, job.Status, job.Progress, job.Input, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM jobs WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit, offset := normalizePagination(filter.Page, filter.Limit)
	dataQuery := fmt.Sprintf(
		`SELECT `+jobColumns+` FROM jobs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// ClaimJob picks the oldest eligible job of the given type with a single
// conditional update. FOR UPDATE SKIP LOCKED keeps concurrent claimers off
// each other's rows, so a job is never handed to two workers.
func (s *PostgresStore) ClaimJob(ctx context.Context, jobType, workerID string, lease time.Duration) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET
		   status = 'running',
		   worker_id = $2,
		   started_at = COALESCE(started_at, NOW()),
		   lease_expires_at = NOW() + make_interval(secs => $3)
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE type = $1
		     AND (status = 'pending' OR (status = 'running' AND lease_expires_at < NOW()))
		   ORDER BY created_at ASC
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 RETURNING `+jobColumns,
		jobType, workerID, lease.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ReportJobProgress(ctx context.Context, id uuid.UUID, workerID string, progress float64, lease time.Duration) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET
		   progress = $3,
		   lease_expires_at = NOW() + make_interval(secs => $4)
		 WHERE id = $1 AND worker_id = $2 AND status = 'running' AND progress <= $3`,
		id, workerID, progress, lease.Seconds())
	if err != nil {
		return fmt.Errorf("report job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.jobStateViolation(ctx, id, "report progress")
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, workerID string, output json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET
		   status = 'completed',
		   progress = 1.0,
		   output = $3,
		   completed_at = NOW(),
		   lease_expires_at = NULL
		 WHERE id = $1 AND worker_id = $2 AND status = 'running'`,
		id, workerID, output)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.jobStateViolation(ctx, id, "complete")
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, workerID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET
		   status = 'failed',
		   error_message = $3,
		   completed_at = NOW(),
		   lease_expires_at = NULL
		 WHERE id = $1 AND worker_id = $2 AND status = 'running'`,
		id, workerID, errMsg)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.jobStateViolation(ctx, id, "fail")
	}
	return nil
}

// jobStateViolation builds the ErrJobStateViolation with the observed state
// for the zero-rows case of a conditional job update.
func (s *PostgresStore) jobStateViolation(ctx context.Context, id uuid.UUID, op string) error {
	var status string
	var workerID *string
	err := s.pool.QueryRow(ctx, `SELECT status, worker_id FROM jobs WHERE id = $1`, id).Scan(&status, &workerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s job %s: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s job %s: %w", op, id, err)
	}
	owner := "<none>"
	if workerID != nil {
		owner = *workerID
	}
	return fmt.Errorf("%s job %s (status=%s, owner=%s): %w", op, id, status, owner, ErrJobStateViolation)
}

func (s *PostgresStore) DeleteTerminalJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE status IN ('completed', 'failed') AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Analysis Results ---

func (s *PostgresStore) CreateAnalysisResult(ctx context.Context, result *models.AnalysisResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_results (id, dataset_id, category, metrics, insights, quality_score, severity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ID, result.DatasetID, result.Category, result.Metrics, result.Insights,
		result.QualityScore, result.Severity, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analysis result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysisResult(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	err := s.pool.QueryRow(ctx,
		`SELECT id, dataset_id, category, metrics, insights, quality_score, severity, created_at
		 FROM analysis_results WHERE id = $1`, id,
	).Scan(&r.ID, &r.DatasetID, &r.Category, &r.Metrics, &r.Insights,
		&r.QualityScore, &r.Severity, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis result: %w", err)
	}
	return &r, nil
}

// --- Signals ---

const signalColumns = `id, analysis_result_id, severity, signal_type, payload, payload_digest, status, tx_hash, tx_confirmed, claimed_at, created_at, sent_at`

func scanSignal(row pgx.Row) (*models.Signal, error) {
	var sig models.Signal
	err := row.Scan(&sig.ID, &sig.AnalysisResultID, &sig.Severity, &sig.SignalType,
		&sig.Payload, &sig.PayloadDigest, &sig.Status, &sig.TxHash, &sig.TxConfirmed,
		&sig.ClaimedAt, &sig.CreatedAt, &sig.SentAt)
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (s *PostgresStore) CreateSignal(ctx context.Context, signal *models.Signal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO signals (id, analysis_result_id, severity, signal_type, payload, payload_digest, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		signal.ID, signal.AnalysisResultID, signal.Severity, signal.SignalType,
		signal.Payload, signal.PayloadDigest, signal.Status, signal.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create signal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSignal(ctx context.Context, id uuid.UUID) (*models.Signal, error) {
	sig, err := scanSignal(s.pool.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return sig, nil
}

func (s *PostgresStore) GetSignalByAnalysisResult(ctx context.Context, analysisResultID uuid.UUID) (*models.Signal, error) {
	sig, err := scanSignal(s.pool.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE analysis_result_id = $1`, analysisResultID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal by analysis result: %w", err)
	}
	return sig, nil
}

func (s *PostgresStore) ListSignals(ctx context.Context, filter SignalFilter) ([]*models.Signal, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, filter.Severity)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM signals WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count signals: %w", err)
	}

	limit, offset := normalizePagination(filter.Page, filter.Limit)
	dataQuery := fmt.Sprintf(
		`SELECT `+signalColumns+` FROM signals WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, total, rows.Err()
}

func (s *PostgresStore) ListPendingSignalsForRelay(ctx context.Context, limit int) ([]*models.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM signals
		 WHERE status = 'pending' AND severity IN ('high', 'critical')
		 ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

func (s *PostgresStore) ClaimSignalForSend(ctx context.Context, id uuid.UUID, claimLease time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE signals SET claimed_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		   AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))`,
		id, claimLease.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim signal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkSignalSent(ctx context.Context, id uuid.UUID, txHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE signals SET
		   status = 'sent', tx_hash = $2, tx_confirmed = TRUE, sent_at = NOW(), claimed_at = NULL
		 WHERE id = $1 AND status = 'pending'`,
		id, txHash)
	if err != nil {
		return fmt.Errorf("mark signal sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkSignalFailed(ctx context.Context, id uuid.UUID, txHash *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE signals SET
		   status = 'failed', tx_hash = COALESCE($2, tx_hash), claimed_at = NULL
		 WHERE id = $1 AND status = 'pending'`,
		id, txHash)
	if err != nil {
		return fmt.Errorf("mark signal failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetSignalForRetry(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE signals SET
		   status = 'pending', tx_hash = NULL, tx_confirmed = FALSE, sent_at = NULL, claimed_at = NULL
		 WHERE id = $1 AND status IN ('pending', 'failed')`, id)
	if err != nil {
		return fmt.Errorf("reset signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetSignal(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrSignalNotRetryable
	}
	return nil
}

func (s *PostgresStore) CountSignalsByStatus(ctx context.Context) (map[string]int, error) {
	return s.countSignalsBy(ctx, "status")
}

func (s *PostgresStore) CountSignalsBySeverity(ctx context.Context) (map[string]int, error) {
	return s.countSignalsBy(ctx, "severity")
}

func (s *PostgresStore) countSignalsBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM signals GROUP BY %s`, column, column))
	if err != nil {
		return nil, fmt.Errorf("count signals by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan signal count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CountSignalsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM signals WHERE created_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent signals: %w", err)
	}
	return n, nil
}

// --- helpers ---

func normalizePagination(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
