package prefs

import (
	"context"
	"sync"
)

// MemoryStore is an in-process preferences store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byUID map[string]Preferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUID: make(map[string]Preferences)}
}

func (s *MemoryStore) Save(_ context.Context, userID string, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUID[userID] = normalize(p)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byUID[userID]
	if !ok {
		return Defaults(), nil
	}
	return p, nil
}
