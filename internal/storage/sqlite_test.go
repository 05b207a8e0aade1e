package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the migration creates the lookup indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_score_cache_expires", "idx_feedback_created", "idx_feedback_kind", "idx_jobs_status_run_after"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestPutAndGetScore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	expires := time.Now().Add(48 * time.Hour).Truncate(time.Millisecond).UTC()
	entry := ScoreEntry{
		SubjectID:  "spez",
		RecordJSON: `{"bot_probability":0.12}`,
		ExpiresAt:  expires,
	}
	if err := s.PutScore(ctx, entry); err != nil {
		t.Fatalf("PutScore: %v", err)
	}

	got, err := s.GetScore(ctx, "spez")
	if err != nil {
		t.Fatalf("GetScore: %v", err)
	}
	if got.RecordJSON != entry.RecordJSON {
		t.Errorf("RecordJSON = %q, want %q", got.RecordJSON, entry.RecordJSON)
	}
	if !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
	if got.StoredAt.IsZero() {
		t.Error("StoredAt should default to now")
	}
}

func TestPutScore_Overwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour)
	if err := s.PutScore(ctx, ScoreEntry{SubjectID: "spez", RecordJSON: `{"v":1}`, ExpiresAt: exp}); err != nil {
		t.Fatalf("PutScore first: %v", err)
	}
	if err := s.PutScore(ctx, ScoreEntry{SubjectID: "spez", RecordJSON: `{"v":2}`, ExpiresAt: exp}); err != nil {
		t.Fatalf("PutScore second: %v", err)
	}

	got, err := s.GetScore(ctx, "spez")
	if err != nil {
		t.Fatalf("GetScore: %v", err)
	}
	if got.RecordJSON != `{"v":2}` {
		t.Errorf("RecordJSON = %q, want overwritten value", got.RecordJSON)
	}
}

func TestGetScoreNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetScore(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteExpiredScores(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.PutScore(ctx, ScoreEntry{SubjectID: "old", RecordJSON: `{}`, ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("PutScore old: %v", err)
	}
	if err := s.PutScore(ctx, ScoreEntry{SubjectID: "fresh", RecordJSON: `{}`, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("PutScore fresh: %v", err)
	}

	n, err := s.DeleteExpiredScores(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredScores: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}
	if _, err := s.GetScore(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired entry still present: %v", err)
	}
	if _, err := s.GetScore(ctx, "fresh"); err != nil {
		t.Errorf("fresh entry removed: %v", err)
	}
}

func TestCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.Counter(ctx, "total_analyzed")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	if v != 0 {
		t.Errorf("unset counter = %d, want 0", v)
	}

	for i := int64(1); i <= 3; i++ {
		got, err := s.IncrementCounter(ctx, "total_analyzed", 1)
		if err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
		if got != i {
			t.Errorf("IncrementCounter returned %d, want %d", got, i)
		}
	}
	if _, err := s.IncrementCounter(ctx, "cache_hits", 5); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}

	v, err = s.Counter(ctx, "total_analyzed")
	if err != nil {
		t.Fatalf("Counter: %v", err)
	}
	if v != 3 {
		t.Errorf("total_analyzed = %d, want 3", v)
	}
}

func TestSaveAndListFeedback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	kinds := []string{"false_positive", "confirmed_bot", "false_positive"}
	for i, kind := range kinds {
		f := Feedback{
			ID:        "fb-" + string(rune('a'+i)),
			SubjectID: "spez",
			Kind:      kind,
			Note:      "note",
			CreatedAt: base.Add(time.Duration(i) * 100 * time.Millisecond),
		}
		if err := s.SaveFeedback(ctx, f); err != nil {
			t.Fatalf("SaveFeedback: %v", err)
		}
	}

	counts, err := s.FeedbackCountsByKind(ctx)
	if err != nil {
		t.Fatalf("FeedbackCountsByKind: %v", err)
	}
	if counts["false_positive"] != 2 || counts["confirmed_bot"] != 1 {
		t.Errorf("counts = %v", counts)
	}

	got, err := s.ListFeedback(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListFeedback: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if got[0].ID != "fb-a" || got[2].ID != "fb-c" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[2].ID)
	}
	if !got[1].CreatedAt.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("CreatedAt = %v", got[1].CreatedAt)
	}

	page, err := s.ListFeedback(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListFeedback page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "fb-b" {
		t.Errorf("page = %+v, want fb-b", page)
	}
}

func TestSaveFeedback_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := Feedback{ID: "fb-dup", SubjectID: "spez", Kind: "confirmed_human", CreatedAt: time.Now()}
	if err := s.SaveFeedback(ctx, f); err != nil {
		t.Fatalf("SaveFeedback: %v", err)
	}
	if err := s.SaveFeedback(ctx, f); err == nil {
		t.Error("expected error for duplicate feedback id")
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := Job{
		ID:          "j-claim-1",
		Type:        "rescore",
		PayloadJSON: `{"subject_id":"spez"}`,
	}
	if err := s.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob(ctx, []string{"rescore"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.Type != "rescore" {
		t.Errorf("Type = %q, want %q", got.Type, "rescore")
	}
	if got.PayloadJSON != `{"subject_id":"spez"}` {
		t.Errorf("PayloadJSON = %q, want %q", got.PayloadJSON, `{"subject_id":"spez"}`)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.ClaimNextJob(ctx, []string{"rescore"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := Job{
		ID:          "j-future",
		Type:        "rescore",
		PayloadJSON: `{}`,
		RunAfter:    time.Now().UTC().Add(1 * time.Hour),
	}
	if err := s.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob(ctx, []string{"rescore"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_TypeFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueJob(ctx, Job{ID: "j-a", Type: "a", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob a: %v", err)
	}
	if err := s.EnqueueJob(ctx, Job{ID: "j-b", Type: "b", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob b: %v", err)
	}

	got, err := s.ClaimNextJob(ctx, []string{"a"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.Type != "a" {
		t.Errorf("Type = %q, want %q", got.Type, "a")
	}
}

func TestClaimNextJob_SkipsRunning(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueJob(ctx, Job{ID: "j-first", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob first: %v", err)
	}
	if _, err := s.ClaimNextJob(ctx, []string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob first: %v", err)
	}

	if err := s.EnqueueJob(ctx, Job{ID: "j-second", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob second: %v", err)
	}

	got, err := s.ClaimNextJob(ctx, []string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob second: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-second" {
		t.Errorf("ID = %q, want %q", got.ID, "j-second")
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueJob(ctx, Job{ID: "j-complete", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob(ctx, []string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob(ctx, "j-complete"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-complete'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want %q", status, "completed")
	}
}

func TestFailJob_IncrementsAttempts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueJob(ctx, Job{ID: "j-fail-inc", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob(ctx, []string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob(ctx, "j-fail-inc", "something broke"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status, lastError string
	var attempts int
	if err := s.db.QueryRow(`SELECT status, attempts, last_error FROM jobs WHERE id = 'j-fail-inc'`).Scan(&status, &attempts, &lastError); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if status != "pending" {
		t.Errorf("status = %q, want %q", status, "pending")
	}
	if lastError != "something broke" {
		t.Errorf("last_error = %q, want %q", lastError, "something broke")
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueJob(ctx, Job{ID: "j-fail-max", Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob(ctx, []string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob(ctx, "j-fail-max", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-fail-max'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "failed" {
		t.Errorf("status = %q, want %q", status, "failed")
	}
}

func TestFailJob_SetsBackoff(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueJob(ctx, Job{ID: "j-backoff", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob(ctx, []string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	before := time.Now().UTC()
	if err := s.FailJob(ctx, "j-backoff", "retry"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var runAfterStr string
	if err := s.db.QueryRow(`SELECT run_after FROM jobs WHERE id = 'j-backoff'`).Scan(&runAfterStr); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	runAfter, err := time.Parse(time.RFC3339, runAfterStr)
	if err != nil {
		t.Fatalf("parsing run_after: %v", err)
	}
	if !runAfter.After(before) {
		t.Errorf("run_after %v should be after %v", runAfter, before)
	}
}
