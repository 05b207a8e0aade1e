// Package activity defines the account and activity data the scoring engine
// consumes, and the provider contract used to fetch it.
package activity

import (
	"context"
	"time"
)

// Kind distinguishes submissions from comments.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// AccountSnapshot is the account metadata observed at fetch time.
type AccountSnapshot struct {
	SubjectID     string
	CreatedAt     time.Time
	LinkKarma     int
	CommentKarma  int
	VerifiedEmail bool
	Premium       bool
	TrophyCount   int
}

// Sample is one authored item.
type Sample struct {
	Kind      Kind
	Title     string // posts only
	Body      string
	Container string // subreddit name
	CreatedAt time.Time
	Score     int
}

// Text returns the authored text of the sample, title first for posts.
func (s Sample) Text() string {
	switch {
	case s.Title == "":
		return s.Body
	case s.Body == "":
		return s.Title
	default:
		return s.Title + "\n" + s.Body
	}
}

// Provider fetches subject data from the upstream platform.
//
// FetchAccountSnapshot returns ErrNotFound when the subject does not exist,
// was deleted, or is suspended. Both methods may return *ProviderError.
type Provider interface {
	FetchAccountSnapshot(ctx context.Context, subjectID string) (*AccountSnapshot, error)
	FetchRecentActivity(ctx context.Context, subjectID string, limit int) ([]Sample, error)
}
