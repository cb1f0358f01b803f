// Package memory stores artifacts in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store keeps artifact payloads in a map and returns pseudo URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put copies the payload and returns a memory:// URI.
func (s *Store) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns a copy of the stored payload.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports how many artifacts are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
