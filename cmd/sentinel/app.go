package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kalambet/sentinel/internal/batch"
	"github.com/kalambet/sentinel/internal/cache"
	"github.com/kalambet/sentinel/internal/config"
	"github.com/kalambet/sentinel/internal/features"
	"github.com/kalambet/sentinel/internal/feedback"
	"github.com/kalambet/sentinel/internal/reddit"
	"github.com/kalambet/sentinel/internal/refresh"
	"github.com/kalambet/sentinel/internal/scoring"
	"github.com/kalambet/sentinel/internal/service"
	"github.com/kalambet/sentinel/internal/storage"
	"github.com/kalambet/sentinel/internal/timezone"
)

// sweepInterval is how often expired rows are purged from the SQLite cache.
const sweepInterval = 10 * time.Minute

// app is the fully wired scoring stack shared by the server and the MCP command.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *storage.Store
	store   cache.Store
	svc     *service.Service
	worker  *refresh.Worker
	closers []io.Closer
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func buildScorer(cfg config.ScoringConfig) (*scoring.Scorer, error) {
	table := scoring.DefaultTable()
	if cfg.WeightsFile != "" {
		t, err := scoring.LoadTable(cfg.WeightsFile)
		if err != nil {
			return nil, fmt.Errorf("loading weights: %w", err)
		}
		table = t
	}
	th := scoring.DefaultThresholds()
	th.LikelyBot = cfg.LikelyBotThreshold
	th.Suspicious = cfg.SuspiciousThreshold
	th.MinConfidence = cfg.MinConfidence
	return scoring.NewScorer(table, th), nil
}

func openCacheStore(ctx context.Context, cfg config.Config, db *storage.Store, logger *slog.Logger) (cache.Store, io.Closer, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cfg.Redis.URL, cfg.Cache.LRUSize, time.Minute)
		if err != nil {
			logger.Warn("redis unavailable at startup, serving degraded", "error", err)
			rs, err = cache.DialRedisStore(cfg.Redis.URL, cfg.Cache.LRUSize, time.Minute)
			if err != nil {
				return nil, nil, err
			}
		}
		return rs, rs, nil
	case "memory":
		return cache.NewMemStore(cfg.Cache.LRUSize, cfg.CacheTTL()), nil, nil
	default:
		return cache.NewSQLiteStore(db), nil, nil
	}
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db, closers: []io.Closer{db}}

	store, closer, err := openCacheStore(ctx, cfg, db, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening cache store: %w", err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.store = store

	scorer, err := buildScorer(cfg.Scoring)
	if err != nil {
		a.Close()
		return nil, err
	}

	client := reddit.NewClient(reddit.Options{
		UserAgent:         cfg.Reddit.UserAgent,
		ClientID:          cfg.Reddit.ClientID,
		ClientSecret:      cfg.Reddit.ClientSecret,
		Timeout:           cfg.RedditTimeout(),
		RequestsPerSecond: cfg.Reddit.RequestsPerSecond,
		MaxRetries:        cfg.Reddit.MaxRetries,
		Logger:            logger,
	})

	analyzer := &cache.Analyzer{
		Provider:      client,
		Extractor:     features.NewExtractor(cfg.Features.MinSamples),
		Scorer:        scorer,
		Timezone:      timezone.NewEstimator(cfg.Timezone.MinActiveHours),
		ActivityLimit: cfg.Reddit.ActivityLimit,
	}

	sc := cache.NewScoreCache(store, analyzer, cache.Options{
		TTL:    cfg.CacheTTL(),
		Logger: logger,
	})

	a.svc = service.New(service.Options{
		Cache:     sc,
		Batch:     batch.NewCoordinator(sc, cfg.Batch.Concurrency, logger),
		Feedback:  feedback.NewSQLiteStore(db),
		Rescore:   refresh.Queue{Store: db},
		Version:   version,
		StartedAt: time.Now(),
		Logger:    logger,
	})
	a.worker = refresh.NewWorker(db, sc, time.Second)

	logger.Info("scoring stack ready",
		"cache_backend", cfg.Cache.Backend,
		"cache_ttl", cfg.CacheTTL(),
		"reddit_oauth", cfg.Reddit.ClientID != "",
		"model_version", scoring.ModelVersion,
	)
	return a, nil
}

// runBackground starts the rescore worker and, for the SQLite backend, the
// expiry sweeper. Both stop with ctx.
func (a *app) runBackground(ctx context.Context) {
	go a.worker.Run(ctx)

	sqlStore, ok := a.store.(*cache.SQLiteStore)
	if !ok {
		return
	}
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := sqlStore.Sweep(ctx)
				if err != nil {
					a.logger.Warn("cache sweep failed", "error", err)
					continue
				}
				if n > 0 {
					a.logger.Debug("cache sweep", "removed", n)
				}
			}
		}
	}()
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func loadConfigAndLogger() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
