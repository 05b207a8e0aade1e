// Package refresh recomputes disputed scores off the request path using the
// SQLite job queue.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sentinel/internal/cache"
	"github.com/kalambet/sentinel/internal/storage"
)

// JobType is the queue type for rescore jobs.
const JobType = "rescore"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Rescorer force-refreshes one subject.
type Rescorer interface {
	GetOrCompute(ctx context.Context, subjectID string, forceRefresh bool) (cache.Result, error)
}

type rescorePayload struct {
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason,omitempty"`
}

// Enqueue schedules a rescore of subjectID.
func Enqueue(ctx context.Context, store JobStore, subjectID, reason string) error {
	payload, err := json.Marshal(rescorePayload{SubjectID: subjectID, Reason: reason})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(ctx, job); err != nil {
		return fmt.Errorf("enqueueing rescore for %s: %w", subjectID, err)
	}
	return nil
}

// Queue enqueues rescore jobs on a JobStore.
type Queue struct {
	Store JobStore
}

func (q Queue) EnqueueRescore(ctx context.Context, subjectID, reason string) error {
	return Enqueue(ctx, q.Store, subjectID, reason)
}

// Worker processes rescore jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	rescorer Rescorer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, rescorer Rescorer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		rescorer: rescorer,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single rescore job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload rescorePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.SubjectID == "" {
		return fmt.Errorf("payload has no subject_id")
	}

	res, err := w.rescorer.GetOrCompute(ctx, payload.SubjectID, true)
	if err != nil {
		return fmt.Errorf("rescoring %s: %w", payload.SubjectID, err)
	}
	w.logger.Info("rescored subject",
		"subject", payload.SubjectID,
		"reason", payload.Reason,
		"classification", res.Record.Classification,
		"bot_probability", res.Record.BotProbability,
	)
	return nil
}
