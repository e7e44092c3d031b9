package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/jobs"
)

// updateRecorder collects OnUpdate snapshots.
type updateRecorder struct {
	mu      sync.Mutex
	updates []jobs.AnalysisJob
	done    chan jobs.AnalysisJob
}

func newUpdateRecorder() *updateRecorder {
	return &updateRecorder{done: make(chan jobs.AnalysisJob, 10)}
}

func (r *updateRecorder) record(j jobs.AnalysisJob) {
	r.mu.Lock()
	r.updates = append(r.updates, j)
	r.mu.Unlock()
	if j.Status.Terminal() {
		r.done <- j
	}
}

func (r *updateRecorder) statuses() []jobs.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]jobs.JobStatus, 0, len(r.updates))
	for _, u := range r.updates {
		out = append(out, u.Status)
	}
	return out
}

func waitTerminal(t *testing.T, r *updateRecorder) jobs.AnalysisJob {
	t.Helper()
	select {
	case j := <-r.done:
		return j
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to finish")
		return jobs.AnalysisJob{}
	}
}

func startQueue(t *testing.T, handler jobs.JobHandler, opts ...Option) (*Queue, *Store, *updateRecorder) {
	t.Helper()
	store := NewStore()
	rec := newUpdateRecorder()
	opts = append([]Option{WithOnUpdate(rec.record), WithBackoff(time.Millisecond)}, opts...)
	q := NewQueue(10, store, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = q.Stop(context.Background())
	})
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return q, store, rec
}

func TestQueue_Completes(t *testing.T) {
	q, store, rec := startQueue(t, func(ctx context.Context, job *jobs.AnalysisJob) error {
		if string(job.Data) != "a,b" {
			t.Errorf("handler got data %q", job.Data)
		}
		job.Result = &domain.HistoryRecord{ID: "rec-1"}
		return nil
	})

	job := &jobs.AnalysisJob{SessionID: "s1", Data: []byte("a,b")}
	if err := q.PublishAnalysis(context.Background(), job); err != nil {
		t.Fatalf("PublishAnalysis() error = %v", err)
	}

	final := waitTerminal(t, rec)
	if final.Status != jobs.JobStatusCompleted || final.Result == nil || final.Result.ID != "rec-1" {
		t.Errorf("final job = %+v", final)
	}
	if final.Data != nil {
		t.Error("snapshot should not carry upload bytes")
	}

	stored, err := store.GetJob(context.Background(), final.JobID)
	if err != nil || stored.Status != jobs.JobStatusCompleted {
		t.Errorf("stored job = %+v, %v", stored, err)
	}

	got := rec.statuses()
	want := []jobs.JobStatus{jobs.JobStatusPending, jobs.JobStatusRunning, jobs.JobStatusCompleted}
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statuses = %v, want %v", got, want)
		}
	}
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	q, _, rec := startQueue(t, func(ctx context.Context, job *jobs.AnalysisJob) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("history backend unavailable")
		}
		return nil
	}, WithMaxRetries(2))

	if err := q.PublishAnalysis(context.Background(), &jobs.AnalysisJob{SessionID: "s1"}); err != nil {
		t.Fatalf("PublishAnalysis() error = %v", err)
	}

	final := waitTerminal(t, rec)
	if final.Status != jobs.JobStatusCompleted || final.RetryCount != 2 {
		t.Errorf("final job = %+v", final)
	}
}

func TestQueue_PermanentErrorNotRetried(t *testing.T) {
	attempts := 0
	q, _, rec := startQueue(t, func(ctx context.Context, job *jobs.AnalysisJob) error {
		attempts++
		return jobs.Permanent(domain.ErrResponseParse)
	}, WithErrorMessage(domain.UserMessage), WithWorkers(1))

	if err := q.PublishAnalysis(context.Background(), &jobs.AnalysisJob{SessionID: "s1"}); err != nil {
		t.Fatalf("PublishAnalysis() error = %v", err)
	}

	final := waitTerminal(t, rec)
	if final.Status != jobs.JobStatusFailed || final.RetryCount != 0 {
		t.Errorf("final job = %+v", final)
	}
	if final.Error != domain.UserMessage(domain.ErrResponseParse) {
		t.Errorf("Error = %q", final.Error)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestQueue_RetriesExhausted(t *testing.T) {
	q, _, rec := startQueue(t, func(ctx context.Context, job *jobs.AnalysisJob) error {
		return errors.New("still down")
	}, WithMaxRetries(1), WithWorkers(1))

	if err := q.PublishAnalysis(context.Background(), &jobs.AnalysisJob{}); err != nil {
		t.Fatalf("PublishAnalysis() error = %v", err)
	}

	final := waitTerminal(t, rec)
	if final.Status != jobs.JobStatusFailed || final.RetryCount != 1 || final.Error != "still down" {
		t.Errorf("final job = %+v", final)
	}
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, NewStore())
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := q.PublishAnalysis(context.Background(), &jobs.AnalysisJob{}); err == nil {
		t.Error("expected error publishing to a stopped queue")
	}
	if err := q.Start(context.Background(), nil); err == nil {
		t.Error("expected error starting a stopped queue")
	}
}

func TestPermanent(t *testing.T) {
	if jobs.Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	err := jobs.Permanent(domain.ErrClassification)
	if !jobs.IsPermanent(err) || !errors.Is(err, domain.ErrClassification) {
		t.Errorf("Permanent() lost identity: %v", err)
	}
	if jobs.IsPermanent(errors.New("x")) {
		t.Error("plain error reported as permanent")
	}
}

func TestQueue_RetryWithoutBackoffKeepsSnapshots(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	q, _, rec := startQueue(t, func(ctx context.Context, job *jobs.AnalysisJob) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if string(job.Data) != "a,b" {
			t.Errorf("attempt %d got data %q", attempts, job.Data)
		}
		if attempts < 3 {
			return errors.New("storage unavailable")
		}
		return nil
	}, WithBackoff(0), WithMaxRetries(3))

	if err := q.PublishAnalysis(context.Background(), &jobs.AnalysisJob{SessionID: "s1", Data: []byte("a,b")}); err != nil {
		t.Fatalf("PublishAnalysis() error = %v", err)
	}

	final := waitTerminal(t, rec)
	if final.Status != jobs.JobStatusCompleted || final.RetryCount != 2 {
		t.Errorf("final = %s after %d retries", final.Status, final.RetryCount)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, u := range rec.updates {
		if u.Status == jobs.JobStatusRetrying && (u.CompletedAt == nil || u.StartedAt == nil) {
			t.Errorf("retrying snapshot lost its timestamps: %+v", u)
		}
	}
}
