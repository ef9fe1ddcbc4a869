package jobx_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/examforge/pkg/errx"
	"github.com/Abraxas-365/examforge/pkg/jobx"
)

// fakeStore is an in-memory Store for worker loop tests.
type fakeStore struct {
	mu         sync.Mutex
	jobs       map[string]*jobx.Job
	claimQueue []*jobx.Job
	completed  map[string]string
	failed     map[string]string
	finalFail  map[string]bool
	heartbeats int
	reapCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:      make(map[string]*jobx.Job),
		completed: make(map[string]string),
		failed:    make(map[string]string),
		finalFail: make(map[string]bool),
	}
}

func (s *fakeStore) push(job *jobx.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.claimQueue = append(s.claimQueue, job)
}

func (s *fakeStore) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, maxAttempts int) (*jobx.Job, error) {
	job := &jobx.Job{
		ID:          jobType + "-1",
		Type:        jobType,
		Status:      jobx.StatusPending,
		Payload:     payload,
		MaxAttempts: maxAttempts,
	}
	s.push(job)
	return job, nil
}

func (s *fakeStore) Claim(ctx context.Context, workerID string, jobTypes []string) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.claimQueue) == 0 {
		return nil, nil
	}
	job := s.claimQueue[0]
	s.claimQueue = s.claimQueue[1:]
	job.Status = jobx.StatusProcessing
	job.Attempts++
	job.WorkerID = workerID
	return job, nil
}

func (s *fakeStore) Heartbeat(ctx context.Context, jobID string, progress *jobx.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return nil
}

func (s *fakeStore) Complete(ctx context.Context, jobID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[jobID] = summary
	return nil
}

func (s *fakeStore) Fail(ctx context.Context, jobID string, errMsg string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[jobID] = errMsg
	s.finalFail[jobID] = final
	return nil
}

func (s *fakeStore) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapCalls++
	return 0, nil
}

func (s *fakeStore) Get(ctx context.Context, jobID string) (*jobx.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, errx.New("not found", errx.TypeNotFound)
	}
	return job, nil
}

func (s *fakeStore) List(ctx context.Context, status jobx.Status, limit int) ([]*jobx.Job, error) {
	return nil, nil
}

type staticPauser bool

func (p staticPauser) Paused(ctx context.Context) bool { return bool(p) }

func runWorker(t *testing.T, w *jobx.Worker, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("worker start: %v", err)
	}
}

func TestWorkerCompletesSuccessfulJob(t *testing.T) {
	store := newFakeStore()
	store.push(&jobx.Job{ID: "j1", Type: "generate", Status: jobx.StatusPending, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		report(ctx, jobx.Progress{Stage: "draft", Done: 1, Total: 2})
		return "generated 2/2", nil
	})

	runWorker(t, w, 100*time.Millisecond)

	if got := store.completed["j1"]; got != "generated 2/2" {
		t.Errorf("expected completion summary, got %q", got)
	}
	if store.heartbeats == 0 {
		t.Error("expected at least one heartbeat")
	}
}

func TestWorkerRetryableFailureIsNotFinal(t *testing.T) {
	store := newFakeStore()
	store.push(&jobx.Job{ID: "j1", Type: "generate", Status: jobx.StatusPending, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		return "", errx.New("provider overloaded", errx.TypeUnavailable)
	})

	runWorker(t, w, 100*time.Millisecond)

	if _, ok := store.failed["j1"]; !ok {
		t.Fatal("expected job failure recorded")
	}
	if store.finalFail["j1"] {
		t.Error("retryable error with attempts remaining must not be final")
	}
}

func TestWorkerExhaustedAttemptsAreFinal(t *testing.T) {
	store := newFakeStore()
	// Claim bumps attempts to 3, matching MaxAttempts
	store.push(&jobx.Job{ID: "j1", Type: "generate", Status: jobx.StatusPending, Attempts: 2, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		return "", errx.New("provider overloaded", errx.TypeUnavailable)
	})

	runWorker(t, w, 100*time.Millisecond)

	if !store.finalFail["j1"] {
		t.Error("exhausted attempts must fail terminally even for retryable errors")
	}
}

func TestWorkerNonRetryableFailureIsFinal(t *testing.T) {
	store := newFakeStore()
	store.push(&jobx.Job{ID: "j1", Type: "generate", Status: jobx.StatusPending, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		return "", errx.New("bad payload", errx.TypeValidation)
	})

	runWorker(t, w, 100*time.Millisecond)

	if !store.finalFail["j1"] {
		t.Error("validation error must fail terminally on first attempt")
	}
}

func TestWorkerMissingSourceFailsOnFirstAttempt(t *testing.T) {
	store := newFakeStore()
	store.push(&jobx.Job{ID: "j1", Type: "generate", Status: jobx.StatusPending, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		return "", errx.New("evidence document missing", errx.TypeNotFound)
	})

	runWorker(t, w, 100*time.Millisecond)

	if !store.finalFail["j1"] {
		t.Error("missing source must fail terminally on the first attempt, not burn retries")
	}
	if got := store.failed["j1"]; got != "evidence document missing" {
		t.Errorf("last error = %q, want the resolution error", got)
	}
}

func TestWorkerDrainsInFlightJobOnShutdown(t *testing.T) {
	store := newFakeStore()
	store.push(&jobx.Job{ID: "j1", Type: "generate", Status: jobx.StatusPending, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
	// The handler outlives the outer context. It must keep running
	// through the drain window instead of being aborted at shutdown.
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return "drained", nil
		}
	})

	runWorker(t, w, 20*time.Millisecond)

	if got := store.completed["j1"]; got != "drained" {
		t.Errorf("summary = %q, want the in-flight job to finish during the drain", got)
	}
	if _, failed := store.failed["j1"]; failed {
		t.Error("in-flight job must not be failed by shutdown while the drain window is open")
	}
}

func TestWorkerAbortsInFlightJobAfterDrainTimeout(t *testing.T) {
	store := newFakeStore()
	store.push(&jobx.Job{ID: "j1", Type: "generate", Status: jobx.StatusPending, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(time.Millisecond),
		jobx.WithShutdownTimeout(10*time.Millisecond),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		select {
		case <-ctx.Done():
			return "", errx.Wrap(ctx.Err(), "aborted", errx.TypeUnavailable)
		case <-time.After(time.Second):
			return "too late", nil
		}
	})

	runWorker(t, w, 10*time.Millisecond)

	if _, ok := store.failed["j1"]; !ok {
		t.Fatal("job aborted past the drain window must still record its failure")
	}
	if store.finalFail["j1"] {
		t.Error("abort on shutdown is retryable, must go back to pending")
	}
}

func TestWorkerFailsJobWithoutHandler(t *testing.T) {
	store := newFakeStore()
	store.push(&jobx.Job{ID: "j1", Type: "unknown", Status: jobx.StatusPending, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		return "", nil
	})

	runWorker(t, w, 100*time.Millisecond)

	if !store.finalFail["j1"] {
		t.Error("job without handler must fail terminally")
	}
}

func TestWorkerPausedDoesNotClaim(t *testing.T) {
	store := newFakeStore()
	store.push(&jobx.Job{ID: "j1", Type: "generate", Status: jobx.StatusPending, MaxAttempts: 3})

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
		jobx.WithPauser(staticPauser(true)),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		return "done", nil
	})

	runWorker(t, w, 60*time.Millisecond)

	if len(store.completed) != 0 || len(store.failed) != 0 {
		t.Error("paused worker must not process jobs")
	}
}

func TestWorkerReaperIsRateLimited(t *testing.T) {
	store := newFakeStore()

	w := jobx.NewWorker(store,
		jobx.WithPollInterval(2*time.Millisecond),
		jobx.WithReaperInterval(time.Hour),
		jobx.WithShutdownTimeout(time.Second),
	)
	w.Register("generate", func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		return "", nil
	})

	runWorker(t, w, 80*time.Millisecond)

	store.mu.Lock()
	calls := store.reapCalls
	store.mu.Unlock()
	if calls > 1 {
		t.Errorf("reaper ran %d times within one interval, want at most 1", calls)
	}
}
