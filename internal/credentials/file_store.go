package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileStore keeps the whole credential map in a single JSON document. Writes
// go through a temp file plus rename so a crashed upsert never leaves a torn
// document behind.
type fileStore struct {
	mu      sync.RWMutex
	path    string
	storage map[string]Credentials
}

// NewFileStore loads the document at path, treating a missing file as an
// empty store.
func NewFileStore(path string) (Store, error) {
	s := &fileStore{path: path, storage: make(map[string]Credentials)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.storage); err != nil {
			return nil, fmt.Errorf("decode credentials file: %w", err)
		}
	}
	return s, nil
}

func (s *fileStore) Get(_ context.Context, userID string) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creds, ok := s.storage[userID]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *fileStore) Upsert(_ context.Context, userID string, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.storage[userID]
	s.storage[userID] = creds
	if err := s.persistLocked(); err != nil {
		if had {
			s.storage[userID] = prev
		} else {
			delete(s.storage, userID)
		}
		return err
	}
	return nil
}

func (s *fileStore) persistLocked() error {
	raw, err := json.MarshalIndent(s.storage, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("stage credentials file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close credentials file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}
