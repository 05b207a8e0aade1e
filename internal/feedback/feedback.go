// Package feedback records human judgements about scored subjects. It is a
// write-mostly sink; nothing in the scoring path reads it.
package feedback

import (
	"context"
	"fmt"
	"time"
)

// Kind is the label a reviewer attached to a subject.
type Kind string

const (
	FalsePositive  Kind = "false_positive"
	FalseNegative  Kind = "false_negative"
	ConfirmedBot   Kind = "confirmed_bot"
	ConfirmedHuman Kind = "confirmed_human"
)

// Kinds lists every valid kind.
var Kinds = []Kind{FalsePositive, FalseNegative, ConfirmedBot, ConfirmedHuman}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case FalsePositive, FalseNegative, ConfirmedBot, ConfirmedHuman:
		return k, nil
	default:
		return "", fmt.Errorf("unknown feedback kind %q", s)
	}
}

// Disputes reports whether the feedback contradicts the current score.
func (k Kind) Disputes() bool {
	return k == FalsePositive || k == FalseNegative
}

type Record struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Kind      Kind      `json:"kind"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is an append-only feedback sink.
type Store interface {
	Record(ctx context.Context, subjectID string, kind Kind, note string) (Record, error)
	CountsByKind(ctx context.Context) (map[Kind]int, error)
	List(ctx context.Context, limit, offset int) ([]Record, error)
}
