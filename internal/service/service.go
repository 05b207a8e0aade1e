// Package service is the boundary the HTTP, MCP and CLI adapters call into.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/kalambet/sentinel/internal/batch"
	"github.com/kalambet/sentinel/internal/cache"
	"github.com/kalambet/sentinel/internal/feedback"
	"github.com/kalambet/sentinel/internal/scoring"
)

var (
	// ErrInvalidSubject is returned for malformed usernames.
	ErrInvalidSubject = errors.New("invalid username")

	ErrInvalidFeedback = errors.New("invalid feedback")
)

var usernameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// ValidateUsername checks Reddit's username rules.
func ValidateUsername(name string) error {
	if !usernameRE.MatchString(name) {
		return fmt.Errorf("%w: %q must be 3-20 characters of letters, digits, '_' or '-'", ErrInvalidSubject, name)
	}
	return nil
}

// RescoreQueue schedules off-path recomputation of a disputed subject.
type RescoreQueue interface {
	EnqueueRescore(ctx context.Context, subjectID, reason string) error
}

type Stats struct {
	TotalAnalyzed  int64                 `json:"total_accounts_analyzed"`
	CacheHitRate   float64               `json:"cache_hit_rate"`
	FeedbackCounts map[feedback.Kind]int `json:"feedback_counts"`
	UptimeSeconds  float64               `json:"uptime_seconds"`
	ModelVersion   string                `json:"model_version"`
}

type Health struct {
	Status         string `json:"status"`
	StoreConnected bool   `json:"redis_connected"`
	ModelLoaded    bool   `json:"model_loaded"`
	Version        string `json:"version"`
}

type Options struct {
	Cache    *cache.ScoreCache
	Batch    *batch.Coordinator
	Feedback feedback.Store
	// Rescore is optional; when nil disputed feedback is only recorded.
	Rescore   RescoreQueue
	Version   string
	StartedAt time.Time
	Logger    *slog.Logger
}

// Service is constructed once per process.
type Service struct {
	cache     *cache.ScoreCache
	batch     *batch.Coordinator
	feedback  feedback.Store
	rescore   RescoreQueue
	version   string
	startedAt time.Time
	logger    *slog.Logger
}

func New(opts Options) *Service {
	s := &Service{
		cache:     opts.Cache,
		batch:     opts.Batch,
		feedback:  opts.Feedback,
		rescore:   opts.Rescore,
		version:   opts.Version,
		startedAt: opts.StartedAt,
		logger:    opts.Logger,
	}
	if s.batch == nil {
		s.batch = batch.NewCoordinator(s.cache, 0, opts.Logger)
	}
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) ScoreUser(ctx context.Context, username string, forceRefresh bool) (cache.Result, error) {
	if err := ValidateUsername(username); err != nil {
		return cache.Result{}, err
	}
	return s.cache.GetOrCompute(ctx, username, forceRefresh)
}

// ScoreBatch rejects the whole request if any username is malformed.
func (s *Service) ScoreBatch(ctx context.Context, usernames []string, forceRefresh bool) (batch.Response, error) {
	for _, name := range usernames {
		if err := ValidateUsername(name); err != nil {
			return batch.Response{}, err
		}
	}
	return s.batch.ScoreBatch(ctx, usernames, forceRefresh)
}

// RecordFeedback stores the label. Disputed labels also queue a rescore;
// queueing failures are logged and do not fail the call.
func (s *Service) RecordFeedback(ctx context.Context, username string, kind feedback.Kind, note string) (feedback.Record, error) {
	if err := ValidateUsername(username); err != nil {
		return feedback.Record{}, err
	}
	if _, err := feedback.ParseKind(string(kind)); err != nil {
		return feedback.Record{}, fmt.Errorf("%w: %v", ErrInvalidFeedback, err)
	}

	rec, err := s.feedback.Record(ctx, cache.NormalizeSubject(username), kind, note)
	if err != nil {
		return feedback.Record{}, err
	}
	s.logger.Info("feedback recorded", "subject", rec.SubjectID, "kind", kind, "id", rec.ID)

	if kind.Disputes() && s.rescore != nil {
		if err := s.rescore.EnqueueRescore(ctx, rec.SubjectID, string(kind)); err != nil {
			s.logger.Warn("queueing rescore failed", "subject", rec.SubjectID, "error", err)
		}
	}
	return rec, nil
}

func (s *Service) ListFeedback(ctx context.Context, limit, offset int) ([]feedback.Record, error) {
	return s.feedback.List(ctx, limit, offset)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.feedback.CountsByKind(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("reading feedback counts: %w", err)
	}
	for _, k := range feedback.Kinds {
		if _, ok := counts[k]; !ok {
			counts[k] = 0
		}
	}

	cs := s.cache.Stats(ctx)
	return Stats{
		TotalAnalyzed:  cs.TotalAnalyzed,
		CacheHitRate:   cs.HitRate(),
		FeedbackCounts: counts,
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
		ModelVersion:   scoring.ModelVersion,
	}, nil
}

// Health pings the cache store. A store outage degrades the service but
// scoring keeps working.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Status:         "healthy",
		StoreConnected: true,
		ModelLoaded:    true,
		Version:        s.version,
	}
	if err := s.cache.Ping(ctx); err != nil {
		h.Status = "degraded"
		h.StoreConnected = false
	}
	return h
}

// CacheTTL exposes the entry lifetime for response metadata.
func (s *Service) CacheTTL() time.Duration {
	return s.cache.TTL()
}
