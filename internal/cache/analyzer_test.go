package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/sentinel/internal/activity"
	"github.com/kalambet/sentinel/internal/features"
	"github.com/kalambet/sentinel/internal/scoring"
	"github.com/kalambet/sentinel/internal/timezone"
)

type mockProvider struct {
	snapshotFn func(ctx context.Context, id string) (*activity.AccountSnapshot, error)
	activityFn func(ctx context.Context, id string, limit int) ([]activity.Sample, error)
}

func (m *mockProvider) FetchAccountSnapshot(ctx context.Context, id string) (*activity.AccountSnapshot, error) {
	return m.snapshotFn(ctx, id)
}

func (m *mockProvider) FetchRecentActivity(ctx context.Context, id string, limit int) ([]activity.Sample, error) {
	return m.activityFn(ctx, id, limit)
}

var analyzerNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestAnalyzer(p activity.Provider) *Analyzer {
	return &Analyzer{
		Provider:      p,
		Extractor:     features.NewExtractor(5).WithClock(func() time.Time { return analyzerNow }),
		Scorer:        scoring.NewScorer(scoring.DefaultTable(), scoring.DefaultThresholds()),
		Timezone:      timezone.NewEstimator(0),
		ActivityLimit: 25,
		Now:           func() time.Time { return analyzerNow },
	}
}

func TestAnalyzer_Analyze(t *testing.T) {
	var gotLimit int
	p := &mockProvider{
		snapshotFn: func(ctx context.Context, id string) (*activity.AccountSnapshot, error) {
			return &activity.AccountSnapshot{
				SubjectID:     id,
				CreatedAt:     analyzerNow.AddDate(-3, 0, 0),
				LinkKarma:     800,
				CommentKarma:  2200,
				VerifiedEmail: true,
				TrophyCount:   4,
			}, nil
		},
		activityFn: func(ctx context.Context, id string, limit int) ([]activity.Sample, error) {
			gotLimit = limit
			var out []activity.Sample
			subs := []string{"golang", "cooking", "hiking", "movies", "books"}
			for i := 0; i < 30; i++ {
				out = append(out, activity.Sample{
					Kind:      activity.KindComment,
					Body:      "Honestly I think that's a fair point, but have you tried the other one?",
					Container: subs[i%len(subs)],
					CreatedAt: analyzerNow.Add(-time.Duration(i*7) * time.Hour),
				})
			}
			return out, nil
		},
	}

	rec, err := newTestAnalyzer(p).Analyze(context.Background(), "spez")
	require.NoError(t, err)
	assert.Equal(t, 25, gotLimit)
	assert.Equal(t, "spez", rec.SubjectID)
	assert.Equal(t, 30, rec.SampleCount)
	assert.Equal(t, analyzerNow, rec.ComputedAt)
	assert.Equal(t, scoring.ModelVersion, rec.ModelVersion)
	assert.NotEmpty(t, rec.ContributingFactors)
	assert.NotNil(t, rec.Timezone)
}

func TestAnalyzer_NotFound(t *testing.T) {
	p := &mockProvider{
		snapshotFn: func(ctx context.Context, id string) (*activity.AccountSnapshot, error) {
			return nil, activity.ErrNotFound
		},
		activityFn: func(ctx context.Context, id string, limit int) ([]activity.Sample, error) {
			return nil, nil
		},
	}
	_, err := newTestAnalyzer(p).Analyze(context.Background(), "ghost")
	assert.ErrorIs(t, err, activity.ErrNotFound)
}

func TestAnalyzer_ProviderError(t *testing.T) {
	p := &mockProvider{
		snapshotFn: func(ctx context.Context, id string) (*activity.AccountSnapshot, error) {
			return &activity.AccountSnapshot{SubjectID: id, CreatedAt: analyzerNow}, nil
		},
		activityFn: func(ctx context.Context, id string, limit int) ([]activity.Sample, error) {
			return nil, &activity.ProviderError{Op: "comments", StatusCode: 429, RateLimited: true}
		},
	}
	_, err := newTestAnalyzer(p).Analyze(context.Background(), "spez")
	require.Error(t, err)
	var pe *activity.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.RateLimited)
}

func TestAnalyzer_NotFoundWinsOverFasterActivityError(t *testing.T) {
	p := &mockProvider{
		snapshotFn: func(ctx context.Context, id string) (*activity.AccountSnapshot, error) {
			time.Sleep(20 * time.Millisecond)
			return nil, activity.ErrNotFound
		},
		activityFn: func(ctx context.Context, id string, limit int) ([]activity.Sample, error) {
			return nil, &activity.ProviderError{Op: "submitted", StatusCode: 403}
		},
	}
	_, err := newTestAnalyzer(p).Analyze(context.Background(), "gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, activity.ErrNotFound)
	assert.False(t, activity.IsProviderError(err))
}

func TestAnalyzer_SnapshotNotCancelledByActivityError(t *testing.T) {
	p := &mockProvider{
		snapshotFn: func(ctx context.Context, id string) (*activity.AccountSnapshot, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(20 * time.Millisecond):
				return nil, activity.ErrNotFound
			}
		},
		activityFn: func(ctx context.Context, id string, limit int) ([]activity.Sample, error) {
			return nil, &activity.ProviderError{Op: "comments", StatusCode: 500}
		},
	}
	_, err := newTestAnalyzer(p).Analyze(context.Background(), "gone")
	assert.ErrorIs(t, err, activity.ErrNotFound)
}
