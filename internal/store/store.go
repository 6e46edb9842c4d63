// Package store defines the key-value surface the harness drives and the
// backends that implement it.
//
// Backends:
//   - Memory: in-process map, immediate visibility (tests, local runs)
//   - SQLite: durable single-file store (local chaos runs that survive restarts)
//   - HTTP: client for the kvchaos HTTP store server (remote/chaos targets)
//   - FailFirst: wrapper injecting transient failures (tests, fault drills)
//
// Every error returned by a backend is treated as transient by callers and
// retried under a fixed budget; corruption is detected one layer up, when
// the fetched bytes are decoded.
package store

import "context"

// Store is the key-value boundary consumed by writers and verifiers.
//
// Get reports ok=false for an absent key with a nil error; an error return
// means the lookup itself failed and may be retried.
type Store interface {
	Get(ctx context.Context, key []byte) (val []byte, ok bool, err error)
	Put(ctx context.Context, key, val []byte) error
	Delete(ctx context.Context, key []byte) error
}
