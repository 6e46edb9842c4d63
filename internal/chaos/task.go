// Package chaos contains the verification core of kvchaos: deterministic
// writer tasks that drive a store, and reader tasks that independently
// replay each writer's operation stream and check a bounded-staleness
// consistency contract against what the store actually serves.
//
// Writers and readers share nothing except each writer's published step
// counter. A reader reconstructs a writer's entire workload from (seed,
// identity, config) alone; that the reconstruction matches the store is
// itself the property under test.
package chaos

import (
	"context"
	"time"

	"github.com/roach88/kvchaos/internal/gen"
)

const (
	// DefaultRetryAttempts bounds retries of a transient store failure for
	// one logical operation, in both the write and the verify path.
	DefaultRetryAttempts = 120

	// DefaultRetryInterval separates consecutive retry attempts.
	DefaultRetryInterval = time.Second

	// DefaultPollInterval is how long a reader sleeps between verification
	// passes over its trackers.
	DefaultPollInterval = 10 * time.Millisecond
)

// Task is the uniform contract every chaos role runs under. Run blocks
// until the context is cancelled (clean shutdown, nil error) or a fatal
// condition is hit (a *Violation or a codec corruption error).
type Task interface {
	Run(ctx context.Context) error
}

// TrackedWriter is the read-only surface a writer publishes to readers.
// CurrentStep must be monotonic and safe to read from other goroutines;
// Seed and Config let a reader build an identical generator replica.
type TrackedWriter interface {
	Index() uint64
	CurrentStep() uint64
	Seed() uint64
	Config() gen.Config
}

// waitInterval blocks for d or until ctx is cancelled, reporting false on
// cancellation. Tasks observe shutdown only here, at the boundary of a
// fixed-interval wait, never in the middle of a store call.
func waitInterval(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
