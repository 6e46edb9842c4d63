package chaos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/kvchaos/internal/value"
)

// retryExhausted reports a transient-failure budget burned to zero. Callers
// convert it into a CodeRetryExhausted violation with their own diagnostic
// context attached.
type retryExhausted struct {
	attempts int
	last     error
}

func (e *retryExhausted) Error() string {
	return fmt.Sprintf("no success after %d attempts: %v", e.attempts, e.last)
}

func (e *retryExhausted) Unwrap() error {
	return e.last
}

// fatal reports whether err must never be retried: consistency findings,
// codec corruption, and cancellation all escalate immediately.
func fatal(err error) bool {
	var corrupt *value.CorruptError
	return IsViolation(err) ||
		errors.As(err, &corrupt) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// retryTransient runs op until it succeeds, fails fatally, or the attempt
// budget is exhausted. Attempts are spaced by interval; the wait between
// attempts is where cancellation is observed, in which case ctx.Err() is
// returned. Budget exhaustion returns a *retryExhausted wrapping the last
// transient error.
func retryTransient(
	ctx context.Context,
	log *slog.Logger,
	attempts int,
	interval time.Duration,
	op func(context.Context) error,
) error {
	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if !waitInterval(ctx, interval) {
				return ctx.Err()
			}
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if fatal(err) {
			return err
		}
		last = err
		log.Error("transient store failure", "attempt", i+1, "attempts", attempts, "error", err)
	}
	return &retryExhausted{attempts: attempts, last: last}
}
