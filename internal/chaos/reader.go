package chaos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/kvchaos/internal/gen"
	"github.com/roach88/kvchaos/internal/store"
	"github.com/roach88/kvchaos/internal/value"
)

// expectKind discriminates the provisional beliefs a tracker can hold about
// a key, pending confirmation by a later draw or observation.
type expectKind int

const (
	// expectExisted predicts the store will serve the given value at the
	// given step.
	expectExisted expectKind = iota
	// expectDeleted predicts the store will serve absence for the key.
	expectDeleted
)

// expectation is one unresolved prediction. value and step are meaningful
// only for expectExisted.
type expectation struct {
	kind  expectKind
	value []byte
	step  uint64
}

// writerTracker replays one writer's deterministic stream and reconciles
// it against the store.
//
// The tracker is in one of two states: fresh (accessed == 0, no
// predictions) or behind (accessed > 0, predictions allowed). It returns to
// fresh only at a round boundary with an empty prediction map; reaching the
// boundary with predictions outstanding is a fatal finding, not a state.
type writerTracker struct {
	writer   TrackedWriter
	accessed uint64
	gen      *gen.Generator
	expected map[string]expectation
}

func (t *writerTracker) reset() {
	t.accessed = 0
	t.gen.Reset()
	t.expected = make(map[string]expectation)
}

// Reader verifies the streams of its tracked writers against the store.
//
// All tracker state is private to the reader's Run goroutine; trackers are
// verified strictly sequentially, one step per tracker per poll tick. The
// only writer state a reader ever touches is the published step counter.
type Reader struct {
	index    uint64
	store    store.Store
	trackers []*writerTracker

	log           *slog.Logger
	pollInterval  time.Duration
	retryAttempts int
	retryInterval time.Duration
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderRetryPolicy overrides the transient-failure retry budget.
func WithReaderRetryPolicy(attempts int, interval time.Duration) ReaderOption {
	return func(r *Reader) {
		r.retryAttempts = attempts
		r.retryInterval = interval
	}
}

// WithPollInterval overrides how long the reader sleeps between passes.
func WithPollInterval(d time.Duration) ReaderOption {
	return func(r *Reader) {
		r.pollInterval = d
	}
}

// WithReaderLogger sets the logger.
func WithReaderLogger(log *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.log = log
	}
}

// NewReader creates a reader tracking the given writers, in order. Each
// tracker gets a private generator replica built from the writer's
// published seed, identity and config; the writer's own generator is never
// touched.
func NewReader(index uint64, writers []TrackedWriter, st store.Store, opts ...ReaderOption) *Reader {
	r := &Reader{
		index:         index,
		store:         st,
		log:           slog.Default(),
		pollInterval:  DefaultPollInterval,
		retryAttempts: DefaultRetryAttempts,
		retryInterval: DefaultRetryInterval,
	}
	for _, w := range writers {
		r.trackers = append(r.trackers, &writerTracker{
			writer:   w,
			gen:      gen.New(w.Seed(), w.Index(), w.Config()),
			expected: make(map[string]expectation),
		})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Index returns the reader's identity.
func (r *Reader) Index() uint64 { return r.index }

// Run polls until ctx is cancelled, verifying every tracker exactly once
// per wake, in order. The first fatal finding terminates the loop.
func (r *Reader) Run(ctx context.Context) error {
	for waitInterval(ctx, r.pollInterval) {
		for _, t := range r.trackers {
			if err := r.verify(ctx, t); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// verify advances one tracker by at most one step. At a round boundary the
// prediction map must be empty; the tracker then restarts its replay from
// scratch.
func (r *Reader) verify(ctx context.Context, t *writerTracker) error {
	current := t.writer.CurrentStep()
	if t.accessed == current {
		return r.finishRound(t)
	}

	t.accessed++
	op := t.gen.NextOp()
	err := retryTransient(ctx, r.log, r.retryAttempts, r.retryInterval, func(ctx context.Context) error {
		return r.verifyNextOp(ctx, t, op)
	})
	var exhausted *retryExhausted
	if errors.As(err, &exhausted) {
		return &Violation{
			Code:         CodeRetryExhausted,
			Message:      fmt.Sprintf("could not verify %s after %d attempts", op.Kind, exhausted.attempts),
			Reader:       r.index,
			Writer:       t.writer.Index(),
			Key:          op.Key,
			AccessedStep: t.accessed,
			Err:          exhausted.last,
		}
	}
	return err
}

// finishRound handles the accessed == current boundary: any prediction
// still pending means a write was never observed to converge.
func (r *Reader) finishRound(t *writerTracker) error {
	for key, e := range t.expected {
		switch e.kind {
		case expectDeleted:
			r.log.Error("key should have been deleted",
				"reader", r.index, "writer", t.writer.Index(),
				"key", store.EncodeKey([]byte(key)), "accessed_step", t.accessed)
		case expectExisted:
			r.log.Error("key should have been written",
				"reader", r.index, "writer", t.writer.Index(),
				"key", store.EncodeKey([]byte(key)), "step", e.step, "accessed_step", t.accessed)
		}
	}
	for key, e := range t.expected {
		return &Violation{
			Code: CodeUnresolvedExpectation,
			Message: fmt.Sprintf("%d predictions unresolved at round boundary",
				len(t.expected)),
			Reader:       r.index,
			Writer:       t.writer.Index(),
			Key:          []byte(key),
			Step:         e.step,
			AccessedStep: t.accessed,
			Expected:     e.value,
		}
	}

	r.log.Info("round complete",
		"reader", r.index, "writer", t.writer.Index(), "accessed_step", t.accessed)
	t.reset()
	return nil
}

// verifyNextOp first retires predictions the new operation confirms, then
// checks the operation against the store. Store errors are transient and
// bubbled to the retry budget; violations and corruption are fatal.
func (r *Reader) verifyNextOp(ctx context.Context, t *writerTracker, op gen.Operation) error {
	r.resolveExpected(t, op)
	switch op.Kind {
	case gen.OpDelete:
		return r.verifyDelete(ctx, t, op)
	case gen.OpPut:
		return r.verifyPut(ctx, t, op)
	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}

// resolveExpected confirms predictions the replay has caught up with: a
// pending absence followed by another delete of the key, or a pending write
// whose step the replay has just reached.
func (r *Reader) resolveExpected(t *writerTracker, op gen.Operation) {
	e, ok := t.expected[string(op.Key)]
	if !ok {
		return
	}
	switch op.Kind {
	case gen.OpDelete:
		if e.kind == expectDeleted {
			delete(t.expected, string(op.Key))
		}
	case gen.OpPut:
		if e.kind == expectExisted && e.step == t.accessed {
			delete(t.expected, string(op.Key))
		}
	}
}

func (r *Reader) verifyDelete(ctx context.Context, t *writerTracker, op gen.Operation) error {
	raw, ok, err := r.store.Get(ctx, op.Key)
	if err != nil {
		return err
	}
	if !ok {
		// Already converged.
		return nil
	}

	v, err := value.Decode(raw)
	if err != nil {
		return err
	}
	if v.Step+1 < t.accessed {
		return r.staleRead(t, op, v)
	}

	// The store has not applied this delete (or a later overwrite) yet;
	// expect the observed write to be accounted for by a later draw.
	t.expected[string(op.Key)] = expectation{kind: expectExisted, value: v.Payload, step: v.Step}
	return nil
}

func (r *Reader) verifyPut(ctx context.Context, t *writerTracker, op gen.Operation) error {
	raw, ok, err := r.store.Get(ctx, op.Key)
	if err != nil {
		return err
	}
	key := string(op.Key)

	if !ok {
		// The put is not visible yet. Predict that the store will serve
		// exactly this value at exactly this step once it converges.
		t.expected[key] = expectation{kind: expectExisted, value: op.Value, step: t.accessed}
		return nil
	}

	v, err := value.Decode(raw)
	if err != nil {
		return err
	}
	switch {
	case v.Step+1 < t.accessed:
		return r.staleRead(t, op, v)

	case v.Step == t.accessed:
		if !bytes.Equal(v.Payload, op.Value) {
			return &Violation{
				Code:         CodeValueMismatch,
				Message:      "stored payload differs from the generated value at the same step",
				Reader:       r.index,
				Writer:       t.writer.Index(),
				Key:          op.Key,
				Step:         v.Step,
				AccessedStep: t.accessed,
				Expected:     op.Value,
				Observed:     v.Payload,
			}
		}
		// Confirmed in place; nothing stays pending for this key.
		delete(t.expected, key)
		return nil

	case v.Step > t.accessed:
		// The writer applies steps in program order, so data from a step
		// the replay has not issued cannot exist.
		return &Violation{
			Code:         CodeWriterAhead,
			Message:      "store served a step the replay has not issued",
			Reader:       r.index,
			Writer:       t.writer.Index(),
			Key:          op.Key,
			Step:         v.Step,
			AccessedStep: t.accessed,
			Observed:     v.Payload,
		}

	default: // v.Step == t.accessed-1: within the staleness window.
		t.expected[key] = expectation{kind: expectExisted, value: v.Payload, step: v.Step}
		return nil
	}
}

func (r *Reader) staleRead(t *writerTracker, op gen.Operation, v value.Value) error {
	return &Violation{
		Code:         CodeStaleRead,
		Message:      "store served data older than the tolerated one-step window",
		Reader:       r.index,
		Writer:       t.writer.Index(),
		Key:          op.Key,
		Step:         v.Step,
		AccessedStep: t.accessed,
		Observed:     v.Payload,
	}
}
