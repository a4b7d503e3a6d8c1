package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const selectJobColumns = `request_id, status, prompt, result_url, error, logs, created_at, updated_at`

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (request_id, status, prompt, result_url, error, logs, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		job.RequestID,
		job.Status,
		job.Prompt,
		job.ResultURL,
		job.Error,
		job.Logs,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// Get fetches a job by its provider-assigned request id.
func (r *JobRepositoryPG) Get(ctx context.Context, requestID string) (*domain.Job, error) {
	query := `SELECT ` + selectJobColumns + ` FROM jobs WHERE request_id = $1;`
	return scanJob(r.pool.QueryRow(ctx, query, requestID))
}

// Apply merges upd into the record inside a per-key transaction. The row lock
// serializes a racing webhook and poll so domain.MergeUpdate sees a stable
// record and the terminal invariant holds.
func (r *JobRepositoryPG) Apply(ctx context.Context, requestID string, upd domain.JobUpdate) (*domain.Job, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("begin job update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + selectJobColumns + ` FROM jobs WHERE request_id = $1 FOR UPDATE;`
	job, err := scanJob(tx.QueryRow(ctx, query, requestID))
	if err != nil {
		return nil, false, err
	}

	if !domain.MergeUpdate(job, upd, time.Now().UTC()) {
		return job, false, nil
	}

	update := `
UPDATE jobs
SET status = $2,
    result_url = $3,
    error = $4,
    logs = $5,
    updated_at = $6
WHERE request_id = $1;
`
	if _, err := tx.Exec(ctx, update,
		job.RequestID,
		job.Status,
		job.ResultURL,
		job.Error,
		job.Logs,
		job.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("update job %s: %w", requestID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit job update: %w", err)
	}
	return job, true, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.RequestID,
		&job.Status,
		&job.Prompt,
		&job.ResultURL,
		&job.Error,
		&job.Logs,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
