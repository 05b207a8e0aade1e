package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

// keySpec binds a dotted config key to its env var and Config field.
type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "SENTINEL_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "SENTINEL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SENTINEL_SERVER_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "server.metrics_enabled", typ: kBool, env: "SENTINEL_SERVER_METRICS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.MetricsEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MetricsEnabled },
	},
	{
		key: "reddit.client_id", typ: kString, env: "REDDIT_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Reddit.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Reddit.ClientID },
	},
	{
		key: "reddit.client_secret", typ: kString, env: "REDDIT_CLIENT_SECRET",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Reddit.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Reddit.ClientSecret },
	},
	{
		key: "reddit.user_agent", typ: kString, env: "SENTINEL_REDDIT_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Reddit.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Reddit.UserAgent },
	},
	{
		key: "reddit.timeout", typ: kString, env: "SENTINEL_REDDIT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Reddit.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Reddit.Timeout },
	},
	{
		key: "reddit.activity_limit", typ: kInt, env: "SENTINEL_REDDIT_ACTIVITY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Reddit.ActivityLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Reddit.ActivityLimit },
	},
	{
		key: "reddit.requests_per_second", typ: kFloat, env: "SENTINEL_REDDIT_REQUESTS_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Reddit.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Reddit.RequestsPerSecond },
	},
	{
		key: "reddit.max_retries", typ: kInt, env: "SENTINEL_REDDIT_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Reddit.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Reddit.MaxRetries },
	},
	{
		key: "redis.url", typ: kString, env: "REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Redis.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.URL },
	},
	{
		key: "cache.backend", typ: kString, env: "SENTINEL_CACHE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Cache.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.Backend },
	},
	{
		key: "cache.ttl_hours", typ: kInt, env: "SENTINEL_CACHE_TTL_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTLHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.TTLHours },
	},
	{
		key: "cache.lru_size", typ: kInt, env: "SENTINEL_CACHE_LRU_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Cache.LRUSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.LRUSize },
	},
	{
		key: "batch.concurrency", typ: kInt, env: "SENTINEL_BATCH_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Batch.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.Concurrency },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SENTINEL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "SENTINEL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "SENTINEL_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "features.min_samples", typ: kInt, env: "SENTINEL_FEATURES_MIN_SAMPLES",
		apply:   func(cfg *Config, v any) { cfg.Features.MinSamples = v.(int) },
		extract: func(cfg Config) any { return cfg.Features.MinSamples },
	},
	{
		key: "timezone.min_active_hours", typ: kInt, env: "SENTINEL_TIMEZONE_MIN_ACTIVE_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Timezone.MinActiveHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Timezone.MinActiveHours },
	},
	{
		key: "scoring.likely_bot_threshold", typ: kFloat, env: "SENTINEL_SCORING_LIKELY_BOT_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Scoring.LikelyBotThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.LikelyBotThreshold },
	},
	{
		key: "scoring.suspicious_threshold", typ: kFloat, env: "SENTINEL_SCORING_SUSPICIOUS_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Scoring.SuspiciousThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.SuspiciousThreshold },
	},
	{
		key: "scoring.min_confidence", typ: kFloat, env: "SENTINEL_SCORING_MIN_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Scoring.MinConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.MinConfidence },
	},
	{
		key: "scoring.weights_file", typ: kString, env: "SENTINEL_SCORING_WEIGHTS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Scoring.WeightsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Scoring.WeightsFile },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
