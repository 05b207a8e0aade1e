package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Reddit   RedditConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Batch    BatchConfig
	Storage  StorageConfig
	Log      LogConfig
	Features FeaturesConfig
	Timezone TimezoneConfig
	Scoring  ScoringConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	APIToken       string
	MetricsEnabled bool
}

type RedditConfig struct {
	ClientID          string
	ClientSecret      string
	UserAgent         string
	Timeout           string
	ActivityLimit     int
	RequestsPerSecond float64
	MaxRetries        int
}

type RedisConfig struct {
	URL string
}

type CacheConfig struct {
	Backend  string // "redis", "sqlite" or "memory"
	TTLHours int
	LRUSize  int
}

type BatchConfig struct {
	Concurrency int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type FeaturesConfig struct {
	MinSamples int
}

type TimezoneConfig struct {
	MinActiveHours int
}

type ScoringConfig struct {
	LikelyBotThreshold  float64
	SuspiciousThreshold float64
	MinConfidence       float64
	WeightsFile         string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			MetricsEnabled: true,
		},
		Reddit: RedditConfig{
			UserAgent:         "sentinel/0.1 (account scoring)",
			Timeout:           "30s",
			ActivityLimit:     100,
			RequestsPerSecond: 1,
			MaxRetries:        3,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Cache: CacheConfig{
			Backend:  "sqlite",
			TTLHours: 48,
			LRUSize:  10_000,
		},
		Batch: BatchConfig{
			Concurrency: 5,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Features: FeaturesConfig{
			MinSamples: 5,
		},
		Timezone: TimezoneConfig{
			MinActiveHours: 6,
		},
		Scoring: ScoringConfig{
			LikelyBotThreshold:  0.75,
			SuspiciousThreshold: 0.40,
			MinConfidence:       0.25,
		},
	}
}

// Load reads configuration in increasing precedence: defaults, the JSON
// config file at $XDG_CONFIG_HOME/sentinel/config.json, a .env file in the
// working directory, and SENTINEL_* environment variables. Secrets not set
// in the environment fall back to the local secrets file.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), defaultSecretsFile())
}

// loadDotEnv exports variables from path without overriding ones already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func loadWith(b ConfigBackend, secrets secretSource) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, fill := range []struct {
		key string
		dst *string
	}{
		{"reddit.client_secret", &cfg.Reddit.ClientSecret},
		{"server.api_token", &cfg.Server.APIToken},
	} {
		if *fill.dst != "" {
			continue
		}
		v, err := secrets.Get(secretAccount(fill.key))
		switch {
		case err == nil:
			*fill.dst = v
		case !errors.Is(err, errSecretNotFound):
			return Config{}, fmt.Errorf("resolving %s: %w", fill.key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Cache.Backend {
	case "redis", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be redis, sqlite or memory, got %q", c.Cache.Backend))
	}
	if c.Cache.TTLHours <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_hours must be positive"))
	}
	if c.Batch.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency must be positive"))
	}
	if _, err := time.ParseDuration(c.Reddit.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("reddit.timeout: %w", err))
	}
	if (c.Reddit.ClientID == "") != (c.Reddit.ClientSecret == "") {
		errs = append(errs, fmt.Errorf("reddit.client_id and reddit.client_secret must be set together"))
	}
	s := c.Scoring
	if !(0 < s.SuspiciousThreshold && s.SuspiciousThreshold < s.LikelyBotThreshold && s.LikelyBotThreshold <= 1) {
		errs = append(errs, fmt.Errorf("scoring thresholds must satisfy 0 < suspicious < likely_bot <= 1"))
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("scoring.min_confidence must be within [0,1]"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// RedditTimeout is the parsed per-fetch timeout.
func (c Config) RedditTimeout() time.Duration {
	d, err := time.ParseDuration(c.Reddit.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}
