package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/examforge/pkg/httpapi"
	"github.com/Abraxas-365/examforge/pkg/jobx"
)

type fakeStore struct {
	jobs     map[string]*jobx.Job
	enqueued []*jobx.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*jobx.Job)}
}

func (s *fakeStore) Enqueue(ctx context.Context, jobType string, payload json.RawMessage, maxAttempts int) (*jobx.Job, error) {
	job := &jobx.Job{
		ID:          "job-1",
		Type:        jobType,
		Status:      jobx.StatusPending,
		Payload:     payload,
		MaxAttempts: maxAttempts,
	}
	s.jobs[job.ID] = job
	s.enqueued = append(s.enqueued, job)
	return job, nil
}

func (s *fakeStore) Claim(ctx context.Context, workerID string, jobTypes []string) (*jobx.Job, error) {
	return nil, nil
}

func (s *fakeStore) Heartbeat(ctx context.Context, jobID string, progress *jobx.Progress) error {
	return nil
}

func (s *fakeStore) Complete(ctx context.Context, jobID string, summary string) error { return nil }

func (s *fakeStore) Fail(ctx context.Context, jobID string, errMsg string, final bool) error {
	return nil
}

func (s *fakeStore) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	return 0, nil
}

func (s *fakeStore) Get(ctx context.Context, jobID string) (*jobx.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, jobx.NotFound(jobID)
	}
	return job, nil
}

func (s *fakeStore) List(ctx context.Context, status jobx.Status, limit int) ([]*jobx.Job, error) {
	var out []*jobx.Job
	for _, j := range s.jobs {
		if status == "" || j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

type fakeFlags struct {
	files map[string][]byte
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{files: make(map[string][]byte)}
}

func (f *fakeFlags) WriteFile(ctx context.Context, path string, data []byte) error {
	f.files[path] = data
	return nil
}

func (f *fakeFlags) DeleteFile(ctx context.Context, path string) error {
	delete(f.files, path)
	return nil
}

func (f *fakeFlags) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

const validPayload = `{
	"mode": "single",
	"topic": "kardiyoloji",
	"source_material": "dahiliye-2024",
	"concepts": ["kalp yetmezliği tedavisi"],
	"evidence": "Kalp yetmezliği tedavisinde beta blokörler mortaliteyi azaltır."
}`

func newApp(store *fakeStore, flags *fakeFlags) *httpapi.Server {
	return httpapi.New(store, flags, "generation_paused.flag", 3)
}

func TestSubmitJobAcceptsValidPayload(t *testing.T) {
	store := newFakeStore()
	app := newApp(store, newFakeFlags()).App()

	req := httptest.NewRequest("POST", "/jobs", strings.NewReader(validPayload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 202 {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(store.enqueued) != 1 {
		t.Fatalf("enqueued = %d, want 1", len(store.enqueued))
	}
	if store.enqueued[0].Type != "generate_questions" {
		t.Errorf("job type = %q", store.enqueued[0].Type)
	}
}

func TestSubmitJobRejectsInvalidPayload(t *testing.T) {
	store := newFakeStore()
	app := newApp(store, newFakeFlags()).App()

	req := httptest.NewRequest("POST", "/jobs", strings.NewReader(`{"mode":"single","topic":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "GENX_INVALID_PAYLOAD") {
		t.Errorf("body missing error code: %s", body)
	}
	if len(store.enqueued) != 0 {
		t.Error("invalid payload must not be enqueued")
	}
}

func TestGetJobNotFound(t *testing.T) {
	app := newApp(newFakeStore(), newFakeFlags()).App()

	resp, err := app.Test(httptest.NewRequest("GET", "/jobs/missing", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "JOBX_JOB_NOT_FOUND") {
		t.Errorf("body missing error code: %s", body)
	}
}

func TestListJobsFiltersByStatus(t *testing.T) {
	store := newFakeStore()
	store.jobs["a"] = &jobx.Job{ID: "a", Status: jobx.StatusPending}
	store.jobs["b"] = &jobx.Job{ID: "b", Status: jobx.StatusCompleted}
	app := newApp(store, newFakeFlags()).App()

	resp, err := app.Test(httptest.NewRequest("GET", "/jobs?status=pending", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("count = %d, want 1", out.Count)
	}
}

func TestPauseLifecycle(t *testing.T) {
	flags := newFakeFlags()
	app := newApp(newFakeStore(), flags).App()

	resp, err := app.Test(httptest.NewRequest("POST", "/generation/pause", nil))
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	if ok, _ := flags.Exists(context.Background(), "generation_paused.flag"); !ok {
		t.Fatal("pause flag not created")
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/generation/pause", nil))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"paused":true`) {
		t.Errorf("status body = %s", body)
	}

	if _, err = app.Test(httptest.NewRequest("DELETE", "/generation/pause", nil)); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if ok, _ := flags.Exists(context.Background(), "generation_paused.flag"); ok {
		t.Error("pause flag not removed")
	}
}
