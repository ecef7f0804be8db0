package rules

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory velocity/pattern store for development and
// tests. Data does not survive a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	velocity  map[string][]VelocityEntry // most-recent-first
	locations map[string]LocationState
	profiles  map[string]SpendingProfile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		velocity:  make(map[string][]VelocityEntry),
		locations: make(map[string]LocationState),
		profiles:  make(map[string]SpendingProfile),
	}
}

// AppendVelocity pushes entry and trims to limit, most-recent-first.
func (s *MemoryStore) AppendVelocity(_ context.Context, userID string, entry VelocityEntry, limit int) ([]VelocityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append([]VelocityEntry{entry}, s.velocity[userID]...)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	s.velocity[userID] = entries

	out := make([]VelocityEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// LocationState returns the user's location state, or nil when unseen.
func (s *MemoryStore) LocationState(_ context.Context, userID string) (*LocationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.locations[userID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// SetLocationState replaces the user's location state.
func (s *MemoryStore) SetLocationState(_ context.Context, userID string, state LocationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[userID] = state
	return nil
}

// SpendingProfile returns the user's profile, or nil when absent.
func (s *MemoryStore) SpendingProfile(_ context.Context, userID string) (*SpendingProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

// SetSpendingProfile replaces the user's profile.
func (s *MemoryStore) SetSpendingProfile(_ context.Context, userID string, profile SpendingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = profile
	return nil
}
