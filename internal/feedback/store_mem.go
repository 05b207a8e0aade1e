package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemStore struct {
	mu      sync.Mutex
	records []Record
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{now: time.Now}
}

func (s *MemStore) Record(ctx context.Context, subjectID string, kind Kind, note string) (Record, error) {
	r := Record{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		Kind:      kind,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
	return r, nil
}

func (s *MemStore) CountsByKind(ctx context.Context) (map[Kind]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[Kind]int)
	for _, r := range s.records {
		counts[r.Kind]++
	}
	return counts, nil
}

func (s *MemStore) List(ctx context.Context, limit, offset int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.records) {
		return nil, nil
	}
	end := len(s.records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]Record, end-offset)
	copy(out, s.records[offset:end])
	return out, nil
}
