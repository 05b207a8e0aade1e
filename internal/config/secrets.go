package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// errSecretNotFound means the secrets file has no value for an account.
var errSecretNotFound = errors.New("secret not set")

// secretSource resolves secrets that are never read from config.json.
type secretSource interface {
	Get(account string) (string, error)
}

// secretsFile is a 0600 JSON object mapping account names to secret values.
type secretsFile struct {
	path string
}

func defaultSecretsFile() secretsFile {
	return secretsFile{path: secretsFilePath()}
}

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "sentinel", "secrets.json")
}

// load returns an empty map when the file does not exist. A file that exists
// but does not parse is an error, so callers never write over it.
func (f secretsFile) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", f.path, err)
	}
	return secrets, nil
}

func (f secretsFile) Get(account string) (string, error) {
	secrets, err := f.load()
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(secrets[account])
	if v == "" {
		return "", fmt.Errorf("%s: %w", account, errSecretNotFound)
	}
	return v, nil
}

// Set stores one secret and keeps the others. The file is replaced through a
// rename so a crash mid-write leaves the previous contents intact.
func (f secretsFile) Set(account, value string) error {
	secrets, err := f.load()
	if err != nil {
		return fmt.Errorf("refusing to overwrite secrets: %w", err)
	}
	secrets[account] = value

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".secrets-*.json")
	if err != nil {
		return fmt.Errorf("creating temp secrets file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting secrets file mode: %w", err)
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("writing secrets file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing secrets file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing secrets file: %w", err)
	}
	return nil
}
