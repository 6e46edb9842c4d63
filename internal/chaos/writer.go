package chaos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/kvchaos/internal/gen"
	"github.com/roach88/kvchaos/internal/store"
	"github.com/roach88/kvchaos/internal/value"
)

// Writer drives one deterministic operation stream into the store.
//
// The step counter is the only field shared with readers: it is published
// atomically, increases by exactly one per draw, and is incremented before
// the draw so the externally visible step always names the operation being
// applied. The Generator is owned exclusively by the writer's Run goroutine.
type Writer struct {
	index uint64
	step  atomic.Uint64
	gen   *gen.Generator
	store store.Store

	log           *slog.Logger
	retryAttempts int
	retryInterval time.Duration
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterRetryPolicy overrides the transient-failure retry budget.
// Used by tests to avoid the 120x1s production budget.
func WithWriterRetryPolicy(attempts int, interval time.Duration) WriterOption {
	return func(w *Writer) {
		w.retryAttempts = attempts
		w.retryInterval = interval
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(log *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.log = log
	}
}

// NewWriter creates a writer with its own generator seeded at seed.
func NewWriter(index, seed uint64, cfg gen.Config, st store.Store, opts ...WriterOption) *Writer {
	w := &Writer{
		index:         index,
		gen:           gen.New(seed, index, cfg),
		store:         st,
		log:           slog.Default(),
		retryAttempts: DefaultRetryAttempts,
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Index returns the writer's identity.
func (w *Writer) Index() uint64 { return w.index }

// CurrentStep returns the published step counter. Safe from any goroutine;
// the atomic load guarantees readers never see a torn or decreasing value.
func (w *Writer) CurrentStep() uint64 { return w.step.Load() }

// Seed returns the seed of the writer's generator.
func (w *Writer) Seed() uint64 { return w.gen.Seed() }

// Config returns the generator configuration.
func (w *Writer) Config() gen.Config { return w.gen.Config() }

// Run executes the operation stream until ctx is cancelled. A retry budget
// exhausted on one operation is fatal and returned as a violation.
func (w *Writer) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		op, step := w.nextOp()
		if err := w.executeWithRetry(ctx, op, step); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return err
		}
	}
	w.log.Info("writer stopped", "writer", w.index, "step", w.CurrentStep())
	return nil
}

// nextOp publishes the step first, then draws, so a concurrent reader that
// sees step s knows operation s has at least been drawn.
func (w *Writer) nextOp() (gen.Operation, uint64) {
	step := w.step.Add(1)
	return w.gen.NextOp(), step
}

func (w *Writer) executeWithRetry(ctx context.Context, op gen.Operation, step uint64) error {
	err := retryTransient(ctx, w.log, w.retryAttempts, w.retryInterval, func(ctx context.Context) error {
		return w.execute(ctx, op, step)
	})
	var exhausted *retryExhausted
	if errors.As(err, &exhausted) {
		return &Violation{
			Code:    CodeRetryExhausted,
			Message: fmt.Sprintf("could not %s after %d attempts", op.Kind, exhausted.attempts),
			Writer:  w.index,
			Key:     op.Key,
			Step:    step,
			Err:     exhausted.last,
		}
	}
	return err
}

// execute applies one operation. Puts bind the payload to the writer's
// identity and the step at draw time.
func (w *Writer) execute(ctx context.Context, op gen.Operation, step uint64) error {
	switch op.Kind {
	case gen.OpDelete:
		w.log.Debug("writer delete", "writer", w.index, "step", step, "key", store.EncodeKey(op.Key))
		return w.store.Delete(ctx, op.Key)
	case gen.OpPut:
		w.log.Debug("writer put",
			"writer", w.index, "step", step, "key", store.EncodeKey(op.Key), "value", string(op.Value))
		return w.store.Put(ctx, op.Key, value.Encode(w.index, step, op.Value))
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}
