// Package batch scores many subjects at once with bounded concurrency.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sentinel/internal/cache"
)

const (
	MaxSubjects        = 50
	DefaultConcurrency = 5
)

// ErrValidation is returned before any work when the request is malformed.
var ErrValidation = errors.New("invalid batch request")

// Status of one batch item.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCached    Status = "cached"
	StatusError     Status = "error"
)

// Item is the outcome for one requested subject.
type Item struct {
	SubjectID string
	Status    Status
	Result    *cache.Result
	Error     string
}

// Response holds one item per requested subject in request order.
type Response struct {
	Items          []Item
	ProcessingTime time.Duration
}

// Scorer is the single-subject path the coordinator fans out over.
type Scorer interface {
	GetOrCompute(ctx context.Context, subjectID string, forceRefresh bool) (cache.Result, error)
}

var batchItems = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_batch_items",
	Help: "Number of batch items processed, by status",
}, []string{"status"})

type Coordinator struct {
	scorer      Scorer
	concurrency int
	logger      *slog.Logger
}

func NewCoordinator(scorer Scorer, concurrency int, logger *slog.Logger) *Coordinator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{scorer: scorer, concurrency: concurrency, logger: logger}
}

// ScoreBatch resolves every subject independently. A failing subject
// becomes an error item and never fails the batch.
func (c *Coordinator) ScoreBatch(ctx context.Context, subjectIDs []string, forceRefresh bool) (Response, error) {
	switch {
	case len(subjectIDs) == 0:
		return Response{}, fmt.Errorf("%w: no subjects", ErrValidation)
	case len(subjectIDs) > MaxSubjects:
		return Response{}, fmt.Errorf("%w: %d subjects exceeds the limit of %d", ErrValidation, len(subjectIDs), MaxSubjects)
	}

	start := time.Now()
	items := make([]Item, len(subjectIDs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, id := range subjectIDs {
		g.Go(func() error {
			items[i] = c.scoreOne(ctx, id, forceRefresh)
			return nil
		})
	}
	g.Wait()

	return Response{Items: items, ProcessingTime: time.Since(start)}, nil
}

func (c *Coordinator) scoreOne(ctx context.Context, id string, force bool) Item {
	res, err := c.scorer.GetOrCompute(ctx, id, force)
	if err != nil {
		c.logger.Warn("batch item failed", "subject", id, "error", err)
		batchItems.WithLabelValues(string(StatusError)).Inc()
		return Item{SubjectID: id, Status: StatusError, Error: err.Error()}
	}

	status := StatusCompleted
	if res.Cached {
		status = StatusCached
	}
	batchItems.WithLabelValues(string(status)).Inc()
	return Item{SubjectID: id, Status: status, Result: &res}
}
