package audit

import (
	"context"
	"sync"
)

// memoryCap bounds the in-memory trail so a long-lived dev gateway does not
// grow without limit.
const memoryCap = 10000

// MemoryStore is an in-memory audit trail for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record // most recent last
	byID    map[string]*Record
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Record)}
}

// Create appends a record, evicting the oldest past the cap.
func (s *MemoryStore) Create(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	s.byID[r.ID] = r
	if len(s.records) > memoryCap {
		evicted := s.records[0]
		s.records = s.records[1:]
		delete(s.byID, evicted.ID)
	}
	return nil
}

// ListByUser returns the user's records, most recent first.
func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].UserID == userID {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// Get returns one record by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}
