package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ScoreEntry is a cached score record serialized by the caller.
type ScoreEntry struct {
	SubjectID  string
	RecordJSON string
	StoredAt   time.Time
	ExpiresAt  time.Time
}

type Feedback struct {
	ID        string
	SubjectID string
	Kind      string
	Note      string
	CreatedAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
