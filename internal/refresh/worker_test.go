package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/sentinel/internal/cache"
	"github.com/kalambet/sentinel/internal/scoring"
	"github.com/kalambet/sentinel/internal/storage"
)

type mockRescorer struct {
	mu       sync.Mutex
	subjects []string
	forced   []bool
	scoreFn  func(ctx context.Context, id string) error
}

func (m *mockRescorer) GetOrCompute(ctx context.Context, id string, force bool) (cache.Result, error) {
	if m.scoreFn != nil {
		if err := m.scoreFn(ctx, id); err != nil {
			return cache.Result{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, id)
	m.forced = append(m.forced, force)
	return cache.Result{Record: scoring.Record{SubjectID: id, Classification: scoring.Suspicious}}, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueTestJob(t *testing.T, store *storage.Store, subjectID string) string {
	t.Helper()
	if err := Enqueue(context.Background(), store, subjectID, "false_positive"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	var id string
	if err := store.DB().QueryRow(`SELECT id FROM jobs WHERE payload_json LIKE ?`, `%"`+subjectID+`"%`).Scan(&id); err != nil {
		t.Fatalf("looking up job id: %v", err)
	}
	return id
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, jobID string) (string, int) {
	t.Helper()
	var status string
	var attempts int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, jobID).Scan(&status, &attempts); err != nil {
		t.Fatalf("query job %s: %v", jobID, err)
	}
	return status, attempts
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	jobID := enqueueTestJob(t, store, "spez")

	rescorer := &mockRescorer{}
	w := NewWorker(store, rescorer, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	rescorer.mu.Lock()
	defer rescorer.mu.Unlock()
	if len(rescorer.subjects) != 1 || rescorer.subjects[0] != "spez" {
		t.Fatalf("rescored %v, want [spez]", rescorer.subjects)
	}
	if !rescorer.forced[0] {
		t.Error("rescore must force a refresh")
	}
	if status, _ := jobStatus(t, store, jobID); status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_NoJobs(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockRescorer{}, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce reported work on an empty queue")
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	jobID := enqueueTestJob(t, store, "flaky")

	var calls atomic.Int32
	w := NewWorker(store, &mockRescorer{
		scoreFn: func(_ context.Context, _ string) error {
			n := calls.Add(1)
			if n <= 2 {
				return fmt.Errorf("transient error %d", n)
			}
			return nil
		},
	}, 0)

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		if _, err := w.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		status, attempts := jobStatus(t, store, jobID)
		if status != "pending" || attempts != i {
			t.Errorf("after fail %d: status=%q attempts=%d, want pending/%d", i, status, attempts, i)
		}
		resetRunAfter(t, store, jobID)
	}

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 3 error: %v", err)
	}
	if status, _ := jobStatus(t, store, jobID); status != "completed" {
		t.Errorf("after 3rd attempt: status=%q, want completed", status)
	}
}

func TestWorker_MaxRetriesExceeded(t *testing.T) {
	store := openTestStore(t)
	jobID := enqueueTestJob(t, store, "gone")

	w := NewWorker(store, &mockRescorer{
		scoreFn: func(_ context.Context, _ string) error {
			return fmt.Errorf("permanent error")
		},
	}, 0)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		didWork, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce %d error: %v", i, err)
		}
		if !didWork {
			t.Fatalf("RunOnce %d returned false", i)
		}
		if i < 3 {
			resetRunAfter(t, store, jobID)
		}
	}

	if status, _ := jobStatus(t, store, jobID); status != "failed" {
		t.Errorf("final status = %q, want %q", status, "failed")
	}
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.EnqueueJob(ctx, storage.Job{ID: "bad", Type: JobType, PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	w := NewWorker(store, &mockRescorer{}, 0)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if status, _ := jobStatus(t, store, "bad"); status != "failed" {
		t.Errorf("status = %q, want failed", status)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	enqueueTestJob(t, store, "loop")

	rescorer := &mockRescorer{}
	w := NewWorker(store, rescorer, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		rescorer.mu.Lock()
		n := len(rescorer.subjects)
		rescorer.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job was not processed by Run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
