package config

import (
	"fmt"
	"strconv"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the platform backend, or to the secrets
// file for secret keys.
func SetKey(key, value string) error {
	b := newPlatformBackend()

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			// Secrets go to the secrets file so config.json stays shareable.
			return defaultSecretsFile().Set(secretAccount(key), value)
		}
		return setTyped(b, s, value)
	}

	return fmt.Errorf("unknown config key: %q", key)
}

func setTyped(b ConfigBackend, s keySpec, value string) error {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", s.key, err)
		}
		return b.SetInt(s.key, i)
	case kFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %w", s.key, err)
		}
		return b.SetFloat(s.key, f)
	case kBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool value for %s: %w", s.key, err)
		}
		return b.SetString(s.key, strconv.FormatBool(v))
	default:
		return b.SetString(s.key, value)
	}
}

// secretAccount maps a secret key to its account name in the secrets file.
func secretAccount(key string) string {
	switch key {
	case "reddit.client_secret":
		return "reddit_client_secret"
	case "server.api_token":
		return "api_token"
	}
	return key
}

// ValidKeys returns every settable config key name, secrets included.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		keys = append(keys, s.key)
	}
	return keys
}
