// Package jobxpostgres implements the jobx.Store on PostgreSQL. Claims
// use SELECT ... FOR UPDATE SKIP LOCKED so multiple workers can poll the
// same table without contending on the same row.
package jobxpostgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/examforge/pkg/jobx"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS background_jobs (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    payload        JSONB,
    attempts       INTEGER NOT NULL DEFAULT 0,
    max_attempts   INTEGER NOT NULL DEFAULT 3,
    worker_id      TEXT,
    progress       JSONB,
    result_summary TEXT,
    last_error     TEXT,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    started_at     TIMESTAMPTZ,
    finished_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_background_jobs_status
    ON background_jobs(status, created_at);
`

// jobRow mirrors the background_jobs table with NULL-safe columns.
type jobRow struct {
	ID            string         `db:"id"`
	Type          string         `db:"type"`
	Status        string         `db:"status"`
	Payload       sql.NullString `db:"payload"`
	Attempts      int            `db:"attempts"`
	MaxAttempts   int            `db:"max_attempts"`
	WorkerID      sql.NullString `db:"worker_id"`
	Progress      sql.NullString `db:"progress"`
	ResultSummary sql.NullString `db:"result_summary"`
	LastError     sql.NullString `db:"last_error"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	StartedAt     sql.NullTime   `db:"started_at"`
	FinishedAt    sql.NullTime   `db:"finished_at"`
}

func (r *jobRow) toJob() *jobx.Job {
	job := &jobx.Job{
		ID:            r.ID,
		Type:          r.Type,
		Status:        jobx.Status(r.Status),
		Attempts:      r.Attempts,
		MaxAttempts:   r.MaxAttempts,
		WorkerID:      r.WorkerID.String,
		ResultSummary: r.ResultSummary.String,
		LastError:     r.LastError.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Payload.Valid {
		job.Payload = json.RawMessage(r.Payload.String)
	}
	if r.Progress.Valid && r.Progress.String != "" {
		var p jobx.Progress
		if err := json.Unmarshal([]byte(r.Progress.String), &p); err == nil {
			job.Progress = &p
		}
	}
	if r.StartedAt.Valid {
		job.StartedAt = &r.StartedAt.Time
	}
	if r.FinishedAt.Valid {
		job.FinishedAt = &r.FinishedAt.Time
	}
	return job
}

// Store is a PostgreSQL-backed jobx.Store.
type Store struct {
	db *sqlx.DB
}

// Open connects to PostgreSQL with the given DSN and creates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection, creating the schema if missing.
func NewStore(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create background_jobs schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for sibling stores sharing the pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue inserts a new pending job.
func (s *Store) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, maxAttempts int) (*jobx.Job, error) {
	now := time.Now().UTC()
	job := &jobx.Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Status:      jobx.StatusPending,
		Payload:     payload,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var payloadArg any
	if payload != nil {
		payloadArg = string(payload)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO background_jobs (id, type, status, payload, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)`,
		job.ID, job.Type, job.Status, payloadArg, job.MaxAttempts, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Claim atomically takes the oldest claimable pending job. Exhausted
// pending rows are force-failed in the same transaction before the
// locked select.
func (s *Store) Claim(ctx context.Context, workerID string, jobTypes []string) (*jobx.Job, error) {
	if len(jobTypes) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'failed', last_error = 'attempts exhausted', finished_at = $1, updated_at = $1
		WHERE status = 'pending' AND type = ANY($2) AND attempts >= max_attempts`,
		now, pq.Array(jobTypes))
	if err != nil {
		return nil, fmt.Errorf("force-fail exhausted jobs: %w", err)
	}

	var row jobRow
	err = tx.GetContext(ctx, &row, `
		SELECT id, type, status, payload, attempts, max_attempts, worker_id,
		       progress, result_summary, last_error, created_at, updated_at,
		       started_at, finished_at
		FROM background_jobs
		WHERE status = 'pending' AND type = ANY($1)
		ORDER BY created_at, id
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, pq.Array(jobTypes))
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit claim scan: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pending job: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'processing', attempts = attempts + 1, worker_id = $1,
		    started_at = $2, updated_at = $2
		WHERE id = $3`, workerID, now, row.ID)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", row.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job := row.toJob()
	job.Status = jobx.StatusProcessing
	job.Attempts++
	job.WorkerID = workerID
	job.UpdatedAt = now
	job.StartedAt = &now
	return job, nil
}

// Heartbeat refreshes updated_at and stores the reported progress.
func (s *Store) Heartbeat(ctx context.Context, jobID string, progress *jobx.Progress) error {
	var progressArg any
	if progress != nil {
		data, err := json.Marshal(progress)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}
		progressArg = string(data)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs SET progress = $1, updated_at = $2
		WHERE id = $3 AND status = 'processing'`,
		progressArg, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("heartbeat job %s: %w", jobID, err)
	}
	return requireRow(res, jobID)
}

// Complete marks a processing job completed. A repeated call on an
// already completed job is a no-op.
func (s *Store) Complete(ctx context.Context, jobID string, summary string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'completed', result_summary = $1, finished_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'processing'`,
		summary, now, jobID)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return s.requireRowOrStatus(ctx, res, jobID, jobx.StatusCompleted)
}

// Fail records an error, returning the job to pending unless final.
func (s *Store) Fail(ctx context.Context, jobID string, errMsg string, final bool) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	if final {
		res, err = s.db.ExecContext(ctx, `
			UPDATE background_jobs
			SET status = 'failed', last_error = $1, finished_at = $2, updated_at = $2
			WHERE id = $3`, errMsg, now, jobID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE background_jobs
			SET status = 'pending', last_error = $1, worker_id = NULL, updated_at = $2
			WHERE id = $3`, errMsg, now, jobID)
	}
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return requireRow(res, jobID)
}

// ReapStale returns silent processing jobs to pending, keeping attempts.
func (s *Store) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'pending', worker_id = NULL, updated_at = $1
		WHERE status = 'processing' AND updated_at < $2`,
		now, now.Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("reap stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Get returns a job by ID.
func (s *Store) Get(ctx context.Context, jobID string) (*jobx.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, type, status, payload, attempts, max_attempts, worker_id,
		       progress, result_summary, last_error, created_at, updated_at,
		       started_at, finished_at
		FROM background_jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobx.NotFound(jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return row.toJob(), nil
}

// List returns recent jobs, newest first.
func (s *Store) List(ctx context.Context, status jobx.Status, limit int) ([]*jobx.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows []jobRow
		err  error
	)
	if status != "" {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, type, status, payload, attempts, max_attempts, worker_id,
			       progress, result_summary, last_error, created_at, updated_at,
			       started_at, finished_at
			FROM background_jobs WHERE status = $1
			ORDER BY created_at DESC LIMIT $2`, status, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT id, type, status, payload, attempts, max_attempts, worker_id,
			       progress, result_summary, last_error, created_at, updated_at,
			       started_at, finished_at
			FROM background_jobs
			ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*jobx.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toJob())
	}
	return jobs, nil
}

func requireRow(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return jobx.NotFound(jobID)
	}
	return nil
}

// requireRowOrStatus treats a zero-row terminal write as success when the
// job already sits in the target state, keeping terminal writes idempotent.
func (s *Store) requireRowOrStatus(ctx context.Context, res sql.Result, jobID string, want jobx.Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.GetContext(ctx, &status, `SELECT status FROM background_jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return jobx.NotFound(jobID)
	}
	if err != nil {
		return fmt.Errorf("check job %s status: %w", jobID, err)
	}
	if jobx.Status(status) == want {
		return nil
	}
	return jobx.NotFound(jobID)
}
