// Package jobxsqlite implements the jobx.Store on SQLite. SQLite has a
// single-writer model, so claims run inside an immediate transaction and
// every write is additionally serialized behind a process-level mutex.
package jobxsqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/examforge/pkg/jobx"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS background_jobs (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    payload        TEXT,
    attempts       INTEGER NOT NULL DEFAULT 0,
    max_attempts   INTEGER NOT NULL DEFAULT 3,
    worker_id      TEXT,
    progress       TEXT,
    result_summary TEXT,
    last_error     TEXT,
    created_at     TIMESTAMP NOT NULL,
    updated_at     TIMESTAMP NOT NULL,
    started_at     TIMESTAMP,
    finished_at    TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_background_jobs_status
    ON background_jobs(status, created_at);
`

// Store is a SQLite-backed jobx.Store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (and creates if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// One writer connection keeps SQLITE_BUSY out of the hot path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create background_jobs schema: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, creating the schema if missing.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create background_jobs schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for sibling stores sharing the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue inserts a new pending job.
func (s *Store) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, maxAttempts int) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO background_jobs (id, type, status, payload, attempts, max_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		job.ID, job.Type, job.Status, string(payload), job.MaxAttempts, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Claim atomically takes the oldest claimable pending job. Pending jobs
// that already exhausted their attempts are force-failed during the scan.
func (s *Store) Claim(ctx context.Context, workerID string, jobTypes []string) (*jobx.Job, error) {
	if len(jobTypes) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimRight(strings.Repeat("?,", len(jobTypes)), ",")
	args := make([]any, 0, len(jobTypes))
	for _, t := range jobTypes {
		args = append(args, t)
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, type, payload, attempts, max_attempts, created_at
		FROM background_jobs
		WHERE status = 'pending' AND type IN (%s)
		ORDER BY created_at, id
		LIMIT 20`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("scan pending jobs: %w", err)
	}

	type candidate struct {
		id          string
		jobType     string
		payload     sql.NullString
		attempts    int
		maxAttempts int
		createdAt   time.Time
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.jobType, &c.payload, &c.attempts, &c.maxAttempts, &c.createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	now := time.Now().UTC()
	for _, c := range candidates {
		if c.attempts >= c.maxAttempts {
			_, err := tx.ExecContext(ctx, `
				UPDATE background_jobs
				SET status = 'failed', last_error = 'attempts exhausted', finished_at = ?, updated_at = ?
				WHERE id = ?`, now, now, c.id)
			if err != nil {
				return nil, fmt.Errorf("force-fail exhausted job %s: %w", c.id, err)
			}
			continue
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE background_jobs
			SET status = 'processing', attempts = attempts + 1, worker_id = ?,
			    started_at = ?, updated_at = ?
			WHERE id = ?`, workerID, now, now, c.id)
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", c.id, err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit claim: %w", err)
		}

		job := &jobx.Job{
			ID:          c.id,
			Type:        c.jobType,
			Status:      jobx.StatusProcessing,
			Attempts:    c.attempts + 1,
			MaxAttempts: c.maxAttempts,
			WorkerID:    workerID,
			CreatedAt:   c.createdAt,
			UpdatedAt:   now,
			StartedAt:   &now,
		}
		if c.payload.Valid {
			job.Payload = json.RawMessage(c.payload.String)
		}
		return job, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim scan: %w", err)
	}
	return nil, nil
}

// Heartbeat refreshes updated_at and stores the reported progress.
func (s *Store) Heartbeat(ctx context.Context, jobID string, progress *jobx.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var progressJSON sql.NullString
	if progress != nil {
		data, err := json.Marshal(progress)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}
		progressJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs SET progress = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`,
		progressJSON, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("heartbeat job %s: %w", jobID, err)
	}
	return requireRow(res, jobID)
}

// Complete marks a processing job completed. A repeated call on an
// already completed job is a no-op.
func (s *Store) Complete(ctx context.Context, jobID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'completed', result_summary = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`,
		summary, now, now, jobID)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return s.requireRowOrStatus(ctx, res, jobID, jobx.StatusCompleted)
}

// Fail records an error, returning the job to pending unless final.
func (s *Store) Fail(ctx context.Context, jobID string, errMsg string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var res sql.Result
	var err error
	if final {
		res, err = s.db.ExecContext(ctx, `
			UPDATE background_jobs
			SET status = 'failed', last_error = ?, finished_at = ?, updated_at = ?
			WHERE id = ?`, errMsg, now, now, jobID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE background_jobs
			SET status = 'pending', last_error = ?, worker_id = NULL, updated_at = ?
			WHERE id = ?`, errMsg, now, jobID)
	}
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return requireRow(res, jobID)
}

// ReapStale returns silent processing jobs to pending. Attempts are kept;
// only the worker assignment is cleared.
func (s *Store) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-staleAfter)
	res, err := s.db.ExecContext(ctx, `
		UPDATE background_jobs
		SET status = 'pending', worker_id = NULL, updated_at = ?
		WHERE status = 'processing' AND updated_at < ?`, now, cutoff)
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, payload, attempts, max_attempts, worker_id,
		       progress, result_summary, last_error, created_at, updated_at,
		       started_at, finished_at
		FROM background_jobs WHERE id = ?`, jobID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, jobx.NotFound(jobID)
	}
	return job, err
}

// List returns recent jobs, newest first.
func (s *Store) List(ctx context.Context, status jobx.Status, limit int) ([]*jobx.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, type, status, payload, attempts, max_attempts, worker_id,
		       progress, result_summary, last_error, created_at, updated_at,
		       started_at, finished_at
		FROM background_jobs`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*jobx.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobx.Job, error) {
	var (
		job        jobx.Job
		payload    sql.NullString
		workerID   sql.NullString
		progress   sql.NullString
		summary    sql.NullString
		lastError  sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := row.Scan(&job.ID, &job.Type, &job.Status, &payload, &job.Attempts,
		&job.MaxAttempts, &workerID, &progress, &summary, &lastError,
		&job.CreatedAt, &job.UpdatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if payload.Valid {
		job.Payload = json.RawMessage(payload.String)
	}
	job.WorkerID = workerID.String
	job.ResultSummary = summary.String
	job.LastError = lastError.String
	if progress.Valid && progress.String != "" {
		var p jobx.Progress
		if err := json.Unmarshal([]byte(progress.String), &p); err == nil {
			job.Progress = &p
		}
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
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
	err = s.db.QueryRowContext(ctx, `SELECT status FROM background_jobs WHERE id = ?`, jobID).Scan(&status)
	if err == sql.ErrNoRows {
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
