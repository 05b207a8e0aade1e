package feedback

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sentinel/internal/storage"
)

type SQLiteStore struct {
	db  *storage.Store
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *storage.Store) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Record(ctx context.Context, subjectID string, kind Kind, note string) (Record, error) {
	r := Record{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		Kind:      kind,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}
	err := s.db.SaveFeedback(ctx, storage.Feedback{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		Kind:      string(r.Kind),
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
	})
	if err != nil {
		return Record{}, fmt.Errorf("saving feedback: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) CountsByKind(ctx context.Context) (map[Kind]int, error) {
	raw, err := s.db.FeedbackCountsByKind(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting feedback: %w", err)
	}
	counts := make(map[Kind]int, len(raw))
	for k, n := range raw {
		counts[Kind(k)] = n
	}
	return counts, nil
}

// List returns records oldest first. limit <= 0 means no limit.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.ListFeedback(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{
			ID:        r.ID,
			SubjectID: r.SubjectID,
			Kind:      Kind(r.Kind),
			Note:      r.Note,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}
