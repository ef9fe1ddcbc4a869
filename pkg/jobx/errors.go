package jobx

import "github.com/Abraxas-365/examforge/pkg/errx"

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrJobNotFound    = jobxErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrEnqueueFailed  = jobxErrors.Register("ENQUEUE_FAILED", errx.TypeExternal, 500, "Failed to enqueue job")
	ErrClaimFailed    = jobxErrors.Register("CLAIM_FAILED", errx.TypeExternal, 500, "Failed to claim job")
	ErrUpdateFailed   = jobxErrors.Register("UPDATE_FAILED", errx.TypeExternal, 500, "Failed to update job")
	ErrReapFailed     = jobxErrors.Register("REAP_FAILED", errx.TypeExternal, 500, "Failed to reap stale jobs")
	ErrNoHandler      = jobxErrors.Register("NO_HANDLER", errx.TypeValidation, 400, "No handler registered for job type")
	ErrInvalidJob     = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, 400, "Invalid job definition")
	ErrAlreadyRunning = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Worker is already running")
)

// NotFound builds the canonical not-found error for a job ID. Store
// implementations use it so callers can match on ErrJobNotFound.
func NotFound(jobID string) *errx.Error {
	return jobxErrors.New(ErrJobNotFound).WithDetail("job_id", jobID)
}
