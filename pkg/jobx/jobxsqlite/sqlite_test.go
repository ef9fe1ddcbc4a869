package jobxsqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Abraxas-365/examforge/pkg/jobx"
	"github.com/Abraxas-365/examforge/pkg/jobx/jobxsqlite"
)

func openStore(t *testing.T) *jobxsqlite.Store {
	t.Helper()
	store, err := jobxsqlite.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	payload := json.RawMessage(`{"topic":"kardiyoloji"}`)
	job, err := store.Enqueue(ctx, "generate_questions", payload, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != jobx.StatusPending {
		t.Fatalf("new job status = %s, want pending", job.Status)
	}

	claimed, err := store.Claim(ctx, "worker-a", []string{"generate_questions"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected to claim the enqueued job")
	}
	if claimed.ID != job.ID {
		t.Errorf("claimed job %s, want %s", claimed.ID, job.ID)
	}
	if claimed.Attempts != 1 {
		t.Errorf("attempts after claim = %d, want 1", claimed.Attempts)
	}
	if claimed.WorkerID != "worker-a" {
		t.Errorf("worker_id = %q, want worker-a", claimed.WorkerID)
	}

	err = store.Heartbeat(ctx, job.ID, &jobx.Progress{Stage: "draft", Done: 1, Total: 4})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	if err := store.Complete(ctx, job.ID, "generated 4/4"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != jobx.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.ResultSummary != "generated 4/4" {
		t.Errorf("summary = %q", got.ResultSummary)
	}
	if got.Progress == nil || got.Progress.Stage != "draft" {
		t.Errorf("progress not persisted: %+v", got.Progress)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestClaimSkipsOtherJobTypes(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.Enqueue(ctx, "reindex", nil, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := store.Claim(ctx, "worker-a", []string{"generate_questions"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed job of unregistered type %q", claimed.Type)
	}
}

func TestNonFinalFailReturnsJobToPending(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	job, err := store.Enqueue(ctx, "generate_questions", nil, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-a", []string{"generate_questions"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := store.Fail(ctx, job.ID, "provider overloaded", false); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != jobx.StatusPending {
		t.Errorf("status = %s, want pending after non-final failure", got.Status)
	}
	if got.WorkerID != "" {
		t.Errorf("worker_id = %q, want cleared", got.WorkerID)
	}
	if got.LastError != "provider overloaded" {
		t.Errorf("last_error = %q", got.LastError)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 preserved", got.Attempts)
	}

	reclaimed, err := store.Claim(ctx, "worker-b", []string{"generate_questions"})
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed == nil {
		t.Fatal("expected to reclaim the returned job")
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("attempts after reclaim = %d, want 2", reclaimed.Attempts)
	}
}

func TestClaimForceFailsExhaustedJobs(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	job, err := store.Enqueue(ctx, "generate_questions", nil, 1)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-a", []string{"generate_questions"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Fail(ctx, job.ID, "transient", false); err != nil {
		t.Fatalf("fail: %v", err)
	}

	// Pending again with attempts == max_attempts: the next claim scan
	// must fail it terminally instead of handing it out.
	claimed, err := store.Claim(ctx, "worker-a", []string{"generate_questions"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed exhausted job %s", claimed.ID)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != jobx.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set on force-fail")
	}
}

func TestReapStaleRequeuesSilentJobs(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	job, err := store.Enqueue(ctx, "generate_questions", nil, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-a", []string{"generate_questions"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Backdate the heartbeat so the job looks abandoned.
	stale := time.Now().UTC().Add(-time.Hour)
	if _, err := store.DB().Exec(`UPDATE background_jobs SET updated_at = ? WHERE id = ?`, stale, job.ID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	reaped, err := store.ReapStale(ctx, 20*time.Minute)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != jobx.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.WorkerID != "" {
		t.Errorf("worker_id = %q, want cleared", got.WorkerID)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want preserved", got.Attempts)
	}
}

func TestReapStaleIgnoresFreshJobs(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.Enqueue(ctx, "generate_questions", nil, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-a", []string{"generate_questions"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	reaped, err := store.ReapStale(ctx, 20*time.Minute)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 0 {
		t.Errorf("reaped = %d, want 0 for a fresh heartbeat", reaped)
	}
}

func TestConcurrentClaimsHandOutJobOnce(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.Enqueue(ctx, "generate_questions", nil, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := store.Claim(ctx, "worker-x", []string{"generate_questions"})
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if job != nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claimed != 1 {
		t.Errorf("job claimed %d times, want exactly 1", claimed)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.Enqueue(ctx, "generate_questions", nil, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Enqueue(ctx, "generate_questions", nil, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := store.Claim(ctx, "worker-a", []string{"generate_questions"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimable job")
	}
	if err := store.Complete(ctx, claimed.ID, "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pending, err := store.List(ctx, jobx.StatusPending, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending jobs = %d, want 1", len(pending))
	}

	all, err := store.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all jobs = %d, want 2", len(all))
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	job, err := store.Enqueue(ctx, "generate_questions", nil, 3)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Claim(ctx, "worker-a", []string{"generate_questions"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Complete(ctx, job.ID, "generated 2/2"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := store.Complete(ctx, job.ID, "generated 2/2"); err != nil {
		t.Errorf("repeated complete on a completed job: %v, want nil", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResultSummary != "generated 2/2" {
		t.Errorf("summary = %q", got.ResultSummary)
	}

	if err := store.Complete(ctx, "nope", "x"); err == nil {
		t.Error("complete on unknown job must still error")
	}
}

func TestGetUnknownJobReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if _, err := store.Get(ctx, "nope"); err == nil {
		t.Error("expected error for unknown job ID")
	}
}
