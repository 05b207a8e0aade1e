package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sentinel/internal/activity"
	"github.com/kalambet/sentinel/internal/features"
	"github.com/kalambet/sentinel/internal/scoring"
	"github.com/kalambet/sentinel/internal/timezone"
)

// DefaultActivityLimit is how many posts and comments are fetched per kind.
const DefaultActivityLimit = 100

// Analyzer runs the full fetch, extract and score pipeline for one subject.
type Analyzer struct {
	Provider      activity.Provider
	Extractor     *features.Extractor
	Scorer        *scoring.Scorer
	Timezone      *timezone.Estimator
	ActivityLimit int
	Now           func() time.Time
}

// Analyze fetches the subject's snapshot and activity concurrently and
// returns a fresh record. A snapshot error takes priority over an activity error.
func (a *Analyzer) Analyze(ctx context.Context, subjectID string) (scoring.Record, error) {
	limit := a.ActivityLimit
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	// The fetches do not cancel each other: a missing account must surface as
	// not found even when the activity fetch fails first.
	var snap *activity.AccountSnapshot
	var samples []activity.Sample
	var snapErr, samplesErr error
	var g errgroup.Group
	g.Go(func() error {
		snap, snapErr = a.Provider.FetchAccountSnapshot(ctx, subjectID)
		return nil
	})
	g.Go(func() error {
		samples, samplesErr = a.Provider.FetchRecentActivity(ctx, subjectID, limit)
		return nil
	})
	g.Wait()

	if snapErr != nil {
		return scoring.Record{}, fmt.Errorf("fetching account %s: %w", subjectID, snapErr)
	}
	if samplesErr != nil {
		return scoring.Record{}, fmt.Errorf("fetching activity for %s: %w", subjectID, samplesErr)
	}

	vec, err := a.Extractor.Extract(snap, samples)
	if err != nil {
		return scoring.Record{}, fmt.Errorf("extracting features for %s: %w", subjectID, err)
	}

	rec := a.Scorer.Score(vec, vec.SampleCount)
	rec.SubjectID = subjectID
	if a.Timezone != nil {
		rec.Timezone = a.Timezone.Estimate(vec.HourHistogram)
	}
	rec.ComputedAt = a.now()
	return rec, nil
}

func (a *Analyzer) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}
