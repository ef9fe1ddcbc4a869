package jobx

import (
	"context"
	"encoding/json"
	"time"
)

// Status represents the current state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress is the coarse-grained progress a handler reports while a job
// is processing. It is persisted on the job row on every heartbeat.
type Progress struct {
	Stage   string `json:"stage"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Job is one row of the background_jobs table.
type Job struct {
	ID            string          `json:"id" db:"id"`
	Type          string          `json:"type" db:"type"`
	Status        Status          `json:"status" db:"status"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	Attempts      int             `json:"attempts" db:"attempts"`
	MaxAttempts   int             `json:"max_attempts" db:"max_attempts"`
	WorkerID      string          `json:"worker_id,omitempty" db:"worker_id"`
	Progress      *Progress       `json:"progress,omitempty" db:"-"`
	ResultSummary string          `json:"result_summary,omitempty" db:"result_summary"`
	LastError     string          `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
}

// Store is the durable queue backend. Implementations are native to their
// database: every operation is expressed in the backend's own SQL dialect
// and locking primitives, never by rewriting another dialect's statements.
type Store interface {
	// Enqueue inserts a new pending job.
	Enqueue(ctx context.Context, jobType string, payload json.RawMessage, maxAttempts int) (*Job, error)

	// Claim atomically moves one pending job of the given types to
	// processing on behalf of workerID, incrementing its attempt counter.
	// Pending jobs whose attempts already reached max_attempts are
	// force-failed during the scan and skipped. Returns nil when nothing
	// is claimable.
	Claim(ctx context.Context, workerID string, jobTypes []string) (*Job, error)

	// Heartbeat refreshes updated_at and stores the handler's progress.
	Heartbeat(ctx context.Context, jobID string, progress *Progress) error

	// Complete marks a processing job completed with a result summary.
	Complete(ctx context.Context, jobID string, summary string) error

	// Fail records an error. When final is false the job returns to
	// pending for another attempt; when true it is failed terminally.
	Fail(ctx context.Context, jobID string, errMsg string, final bool) error

	// ReapStale returns processing jobs whose updated_at is older than
	// staleAfter to pending, clearing worker_id and preserving attempts.
	// Returns the number of jobs reaped.
	ReapStale(ctx context.Context, staleAfter time.Duration) (int, error)

	// Get returns a job by ID.
	Get(ctx context.Context, jobID string) (*Job, error)

	// List returns recent jobs, optionally filtered by status.
	List(ctx context.Context, status Status, limit int) ([]*Job, error)
}
