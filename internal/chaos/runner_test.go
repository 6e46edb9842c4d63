package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kvchaos/internal/store"
)

func TestNewRunner_RoundRobinAssignment(t *testing.T) {
	r := NewRunner(store.NewMemory(), RunnerConfig{
		Writers:   5,
		Readers:   2,
		BaseSeed:  1,
		Generator: testGenConfig(),
	})

	require.Len(t, r.Writers(), 5)
	require.Len(t, r.Readers(), 2)

	trackedIndexes := func(rd *Reader) []uint64 {
		var idx []uint64
		for _, tr := range rd.trackers {
			idx = append(idx, tr.writer.Index())
		}
		return idx
	}
	assert.Equal(t, []uint64{0, 2, 4}, trackedIndexes(r.Readers()[0]))
	assert.Equal(t, []uint64{1, 3}, trackedIndexes(r.Readers()[1]))
}

func TestNewRunner_ReadersCappedAtWriters(t *testing.T) {
	r := NewRunner(store.NewMemory(), RunnerConfig{
		Writers:   2,
		Readers:   5,
		BaseSeed:  1,
		Generator: testGenConfig(),
	})
	assert.Len(t, r.Readers(), 2, "surplus readers would track nothing")
}

func TestNewRunner_SeedDerivation(t *testing.T) {
	r := NewRunner(store.NewMemory(), RunnerConfig{
		Writers:   3,
		Readers:   1,
		BaseSeed:  100,
		Generator: testGenConfig(),
	})
	for i, w := range r.Writers() {
		assert.Equal(t, uint64(100+i), w.Seed(), "writer %d", i)
		assert.Equal(t, uint64(i), w.Index())
	}
}

func TestRunner_RunCleanShutdown(t *testing.T) {
	st := store.NewMemory()
	r := NewRunner(st, RunnerConfig{
		Writers:   2,
		Readers:   2,
		BaseSeed:  42,
		Generator: testGenConfig(),
	},
		WithWriterOptions(WithWriterRetryPolicy(120, time.Millisecond)),
		WithReaderOptions(
			WithReaderRetryPolicy(120, time.Millisecond),
			WithPollInterval(time.Millisecond)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, r.Run(ctx), "cancellation shuts the whole run down cleanly")
	for _, w := range r.Writers() {
		assert.Positive(t, w.CurrentStep(), "writer %d never ran", w.Index())
	}
}

func TestRunner_FatalFindingStopsRun(t *testing.T) {
	// A store that never recovers exhausts a one-attempt budget on the
	// first operation; the finding cancels all remaining tasks.
	flaky := store.NewFailFirst(store.NewMemory(), 1_000_000)
	r := NewRunner(flaky, RunnerConfig{
		Writers:   1,
		Readers:   1,
		BaseSeed:  7,
		Generator: testGenConfig(),
	},
		WithWriterOptions(WithWriterRetryPolicy(1, time.Millisecond)),
		WithReaderOptions(
			WithReaderRetryPolicy(1, time.Millisecond),
			WithPollInterval(time.Millisecond)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.Run(ctx)
	require.Error(t, err)
	require.True(t, IsViolation(err))

	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, CodeRetryExhausted, v.Code)
}
