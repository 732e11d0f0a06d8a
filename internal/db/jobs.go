package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrLeaseLost signals that a lease-guarded update matched no row: the
// lease expired and another worker reclaimed the job.
var ErrLeaseLost = errors.New("lease no longer held")

const jobColumns = `id, external_run_id, source, status, lock_token, locked_until,
	progress_cursor, items_fetched, items_upserted, attempts, last_error,
	created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.ExternalRunID, &j.Source, &j.Status, &j.LockToken,
		&j.LockedUntil, &j.ProgressCursor, &j.ItemsFetched, &j.ItemsUpserted,
		&j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// EnqueueJob creates a queued ingestion job for an external run.
func (db *DB) EnqueueJob(ctx context.Context, source, externalRunID string) (*Job, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO ingest_jobs (source, external_run_id, status)
		 VALUES ($1, $2, 'queued')
		 RETURNING `+jobColumns,
		source, externalRunID,
	)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// ClaimOldest atomically leases the oldest claimable job: active status and
// lease absent or expired. The claim is a single conditional UPDATE so two
// workers can never hold the same job; the loser simply gets no row.
// FOR UPDATE SKIP LOCKED keeps concurrent claimants from serializing on the
// same candidate row.
func (db *DB) ClaimOldest(ctx context.Context, source string, token uuid.UUID, ttl time.Duration) (*Job, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE ingest_jobs SET
		     lock_token = $1,
		     locked_until = NOW() + $2,
		     status = CASE WHEN status = 'queued' THEN 'running' ELSE status END,
		     updated_at = NOW()
		 WHERE id = (
		     SELECT id FROM ingest_jobs
		     WHERE status IN ('queued', 'running', 'fetching')
		       AND (locked_until IS NULL OR locked_until < NOW())
		       AND ($3 = '' OR source = $3)
		     ORDER BY created_at
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		   AND (locked_until IS NULL OR locked_until < NOW())
		 RETURNING `+jobColumns,
		token, ttl, source,
	)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return j, nil
}

// ExtendLease pushes locked_until forward for the current holder.
func (db *DB) ExtendLease(ctx context.Context, id, token uuid.UUID, ttl time.Duration) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ingest_jobs SET locked_until = NOW() + $3, updated_at = NOW()
		 WHERE id = $1 AND lock_token = $2`,
		id, token, ttl,
	)
	if err != nil {
		return fmt.Errorf("failed to extend lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// ReleaseLease clears the lease without changing status.
func (db *DB) ReleaseLease(ctx context.Context, id, token uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE ingest_jobs SET lock_token = NULL, locked_until = NULL, updated_at = NOW()
		 WHERE id = $1 AND lock_token = $2`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// SetJobStatus moves a leased job to a new status, keeping the lease.
func (db *DB) SetJobStatus(ctx context.Context, id, token uuid.UUID, status JobStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ingest_jobs SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND lock_token = $2`,
		id, token, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// IncrementProgress checkpoints executor progress. The cursor is written as
// an absolute position but the counters are additive deltas, so a retried or
// overlapping checkpoint cannot double-count upserts.
func (db *DB) IncrementProgress(ctx context.Context, id, token uuid.UUID, cursor int, fetchedDelta, upsertedDelta int64) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ingest_jobs SET
		     progress_cursor = $3,
		     items_fetched = items_fetched + $4,
		     items_upserted = items_upserted + $5,
		     updated_at = NOW()
		 WHERE id = $1 AND lock_token = $2`,
		id, token, cursor, fetchedDelta, upsertedDelta,
	)
	if err != nil {
		return fmt.Errorf("failed to checkpoint progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// FinishJob marks a leased job done and releases the lease.
func (db *DB) FinishJob(ctx context.Context, id, token uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ingest_jobs SET
		     status = 'done', lock_token = NULL, locked_until = NULL, updated_at = NOW()
		 WHERE id = $1 AND lock_token = $2`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// SuspendJob parks a leased job in fetching and releases the lease so the
// next invocation can resume from the checkpointed cursor.
func (db *DB) SuspendJob(ctx context.Context, id, token uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ingest_jobs SET
		     status = 'fetching', lock_token = NULL, locked_until = NULL, updated_at = NOW()
		 WHERE id = $1 AND lock_token = $2`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("failed to suspend job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// FailJob marks a leased job terminally errored and releases the lease.
func (db *DB) FailJob(ctx context.Context, id, token uuid.UUID, msg string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ingest_jobs SET
		     status = 'error', last_error = $3,
		     lock_token = NULL, locked_until = NULL, updated_at = NOW()
		 WHERE id = $1 AND lock_token = $2`,
		id, token, msg,
	)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// RecordJobError records a non-terminal failure: last_error is stored,
// attempts incremented and the lease released, but status is left as-is so
// the job stays claimable. Once attempts reaches maxAttempts the job is
// marked error instead.
func (db *DB) RecordJobError(ctx context.Context, id, token uuid.UUID, msg string, maxAttempts int) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ingest_jobs SET
		     attempts = attempts + 1,
		     last_error = $3,
		     status = CASE WHEN attempts + 1 >= $4 THEN 'error' ELSE status END,
		     lock_token = NULL, locked_until = NULL, updated_at = NOW()
		 WHERE id = $1 AND lock_token = $2`,
		id, token, msg, maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to record job error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// JobFilters holds optional filters for listing jobs.
type JobFilters struct {
	Source string
	Status JobStatus
	Limit  int
}

// ListJobs retrieves recent jobs with optional filters.
func (db *DB) ListJobs(ctx context.Context, filters JobFilters) ([]Job, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM ingest_jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Source != "" {
		query += fmt.Sprintf(" AND source = $%d", argNum)
		args = append(args, filters.Source)
		argNum++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}
