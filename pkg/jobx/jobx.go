package jobx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Abraxas-365/examforge/pkg/errx"
	"github.com/Abraxas-365/examforge/pkg/logx"
	"github.com/google/uuid"
)

// ProgressFunc lets a handler report progress mid-job. Reports are
// persisted as heartbeats; a report failure is logged, never fatal.
type ProgressFunc func(ctx context.Context, p Progress)

// HandlerFunc processes one claimed job. The returned summary is stored
// on the job row when the handler succeeds. A returned error fails the
// job: terminally when the error is non-retryable or attempts are
// exhausted, otherwise the job goes back to pending.
type HandlerFunc func(ctx context.Context, job *Job, report ProgressFunc) (string, error)

// Worker claims and processes jobs one at a time.
type Worker struct {
	store    Store
	opts     WorkerOptions
	handlers map[string]HandlerFunc

	mu       sync.RWMutex
	running  bool
	lastReap time.Time
}

// NewWorker creates a worker bound to a store.
func NewWorker(store Store, options ...WorkerOption) *Worker {
	opts := defaultWorkerOptions()
	for _, o := range options {
		o(&opts)
	}
	if opts.WorkerID == "" {
		opts.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	return &Worker{
		store:    store,
		opts:     opts,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler for a job type.
func (w *Worker) Register(jobType string, handler HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Enqueue inserts a new pending job.
func (w *Worker) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, maxAttempts int) (*Job, error) {
	if jobType == "" {
		return nil, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "empty job type")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return w.store.Enqueue(ctx, jobType, payload, maxAttempts)
}

// GetJob returns the current state of a job.
func (w *Worker) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return w.store.Get(ctx, jobID)
}

// WorkerID returns this worker's identity.
func (w *Worker) WorkerID() string {
	return w.opts.WorkerID
}

// Start runs the claim loop until ctx is cancelled. It blocks; on
// cancellation it waits up to ShutdownTimeout for the in-flight job.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	logx.Infof("jobx: worker %s starting (poll=%s stale_after=%s)",
		w.opts.WorkerID, w.opts.PollInterval, w.opts.StaleAfter)

	// loopCtx stops claiming on shutdown; jobCtx keeps the in-flight
	// handler alive through the drain and is cancelled only when the
	// drain times out.
	done := make(chan struct{})
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	jobCtx, cancelJob := context.WithCancel(context.Background())
	defer cancelJob()
	go func() {
		defer close(done)
		w.loop(loopCtx, jobCtx)
	}()

	<-ctx.Done()
	logx.Info("jobx: shutting down worker...")
	cancelLoop()

	select {
	case <-done:
		logx.Info("jobx: worker stopped")
	case <-time.After(w.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out, aborting in-flight job")
		cancelJob()
		<-done
	}

	return nil
}

func (w *Worker) loop(ctx, jobCtx context.Context) {
	wasPaused := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.opts.Pauser != nil && w.opts.Pauser.Paused(ctx) {
			if !wasPaused {
				logx.Info("jobx: generation paused, worker idling")
				wasPaused = true
			}
			w.sleep(ctx)
			continue
		}
		if wasPaused {
			logx.Info("jobx: generation resumed")
			wasPaused = false
		}

		w.maybeReap(ctx)

		job, err := w.store.Claim(ctx, w.opts.WorkerID, w.handlerTypes())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warn("jobx: claim failed")
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.processJob(jobCtx, job)
	}
}

// maybeReap sweeps stale processing jobs, at most once per ReaperInterval.
func (w *Worker) maybeReap(ctx context.Context) {
	w.mu.Lock()
	due := time.Since(w.lastReap) >= w.opts.ReaperInterval
	if due {
		w.lastReap = time.Now()
	}
	w.mu.Unlock()
	if !due {
		return
	}

	reaped, err := w.store.ReapStale(ctx, w.opts.StaleAfter)
	if err != nil {
		logx.WithError(err).Warn("jobx: stale reap failed")
		return
	}
	if reaped > 0 {
		logx.Infof("jobx: requeued %d stale job(s)", reaped)
	}
}

// finalWriteTimeout bounds the Complete/Fail write after a handler
// returns. The write runs on its own context so a cancelled handler
// context cannot also lose the outcome.
const finalWriteTimeout = 10 * time.Second

func (w *Worker) processJob(ctx context.Context, job *Job) {
	w.mu.RLock()
	handler, ok := w.handlers[job.Type]
	w.mu.RUnlock()

	if !ok {
		logx.Warnf("jobx: no handler for job type %q (id=%s)", job.Type, job.ID)
		if err := w.store.Fail(context.Background(), job.ID, "no handler registered for job type", true); err != nil {
			logx.WithError(err).Errorf("jobx: failed to fail job %s", job.ID)
		}
		return
	}

	logx.WithFields(logx.Fields{
		"job_id":  job.ID,
		"type":    job.Type,
		"attempt": job.Attempts,
	}).Info("jobx: processing job")

	report := func(ctx context.Context, p Progress) {
		if err := w.store.Heartbeat(ctx, job.ID, &p); err != nil {
			logx.WithError(err).Warnf("jobx: heartbeat failed for job %s", job.ID)
		}
	}

	summary, err := handler(ctx, job, report)

	writeCtx, cancel := context.WithTimeout(context.Background(), finalWriteTimeout)
	defer cancel()

	if err != nil {
		final := !errx.IsRetryable(err) || job.Attempts >= job.MaxAttempts
		logx.WithError(err).WithFields(logx.Fields{
			"job_id": job.ID,
			"final":  final,
		}).Warn("jobx: job failed")

		if failErr := w.store.Fail(writeCtx, job.ID, err.Error(), final); failErr != nil {
			logx.WithError(failErr).Errorf("jobx: failed to mark job %s as failed", job.ID)
		}
		return
	}

	if err := w.store.Complete(writeCtx, job.ID, summary); err != nil {
		logx.WithError(err).Errorf("jobx: failed to complete job %s", job.ID)
		return
	}

	logx.WithFields(logx.Fields{
		"job_id":  job.ID,
		"summary": summary,
	}).Info("jobx: job completed")
}

func (w *Worker) handlerTypes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	return types
}

func (w *Worker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.opts.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
