package store

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is the transient failure surfaced by fault-injecting wrappers.
var ErrInjected = errors.New("injected store failure")

// FailFirst wraps a Store and fails the first N calls across Get, Put and
// Delete with ErrInjected; every later call passes through. Safe for
// concurrent use.
//
// The wrapper counts calls, not logical operations, so a retry loop that
// needs N failures burned before its operation can succeed will consume
// exactly N+1 attempts.
type FailFirst struct {
	inner Store

	mu        sync.Mutex
	remaining int
	calls     int
}

// NewFailFirst wraps inner so its first n calls fail.
func NewFailFirst(inner Store, n int) *FailFirst {
	return &FailFirst{inner: inner, remaining: n}
}

// Calls returns the total number of calls observed, failed or not.
func (s *FailFirst) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// inject registers one call and reports whether it should fail.
func (s *FailFirst) inject() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.remaining > 0 {
		s.remaining--
		return true
	}
	return false
}

func (s *FailFirst) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if s.inject() {
		return nil, false, ErrInjected
	}
	return s.inner.Get(ctx, key)
}

func (s *FailFirst) Put(ctx context.Context, key, val []byte) error {
	if s.inject() {
		return ErrInjected
	}
	return s.inner.Put(ctx, key, val)
}

func (s *FailFirst) Delete(ctx context.Context, key []byte) error {
	if s.inject() {
		return ErrInjected
	}
	return s.inner.Delete(ctx, key)
}
