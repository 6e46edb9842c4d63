package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store backed by a map. Writes are immediately
// visible to subsequent reads. Safe for concurrent use.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

// Get returns a copy of the stored value, so callers can never observe a
// later overwrite through an aliased slice.
func (s *Memory) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.m[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (s *Memory) Put(_ context.Context, key, val []byte) error {
	stored := make([]byte, len(val))
	copy(stored, val)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[string(key)] = stored
	return nil
}

func (s *Memory) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, string(key))
	return nil
}

// Len returns the number of stored keys.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
