package credentials

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	storage map[string]Credentials
}

// NewMemoryStore constructs an in-memory store. Records do not survive a
// restart, so this backend is for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{storage: make(map[string]Credentials)}
}

func (s *memoryStore) Get(_ context.Context, userID string) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.storage[userID]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *memoryStore) Upsert(_ context.Context, userID string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage[userID] = creds
	return nil
}
