package chaos

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/kvchaos/internal/gen"
	"github.com/roach88/kvchaos/internal/store"
)

// RunnerConfig sizes one chaos run. Per-writer seeds are derived from
// BaseSeed by wrapping addition of the writer index, so a run is fully
// reproducible from its base seed.
type RunnerConfig struct {
	Writers   int
	Readers   int
	BaseSeed  uint64
	Generator gen.Config
}

// Runner assembles the writers and readers of one chaos run and supervises
// them as independently scheduled tasks.
type Runner struct {
	writers []*Writer
	readers []*Reader
	log     *slog.Logger
}

type runnerOptions struct {
	log        *slog.Logger
	writerOpts []WriterOption
	readerOpts []ReaderOption
}

// RunnerOption configures a Runner.
type RunnerOption func(*runnerOptions)

// WithRunnerLogger sets the logger for the runner and its tasks.
func WithRunnerLogger(log *slog.Logger) RunnerOption {
	return func(o *runnerOptions) {
		o.log = log
	}
}

// WithWriterOptions forwards options to every writer.
func WithWriterOptions(opts ...WriterOption) RunnerOption {
	return func(o *runnerOptions) {
		o.writerOpts = append(o.writerOpts, opts...)
	}
}

// WithReaderOptions forwards options to every reader.
func WithReaderOptions(opts ...ReaderOption) RunnerOption {
	return func(o *runnerOptions) {
		o.readerOpts = append(o.readerOpts, opts...)
	}
}

// NewRunner builds cfg.Writers writers and up to cfg.Readers readers
// against the store. Writers are assigned to readers round-robin: reader i
// tracks writers i, i+readers, i+2*readers, ... so every writer has exactly
// one verifier.
func NewRunner(st store.Store, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	o := runnerOptions{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	writerOpts := append([]WriterOption{WithWriterLogger(o.log)}, o.writerOpts...)
	readerOpts := append([]ReaderOption{WithReaderLogger(o.log)}, o.readerOpts...)

	r := &Runner{log: o.log}
	for idx := 0; idx < cfg.Writers; idx++ {
		seed := cfg.BaseSeed + uint64(idx)
		r.writers = append(r.writers, NewWriter(uint64(idx), seed, cfg.Generator, st, writerOpts...))
	}

	readers := cfg.Readers
	if readers > cfg.Writers {
		readers = cfg.Writers
	}
	for idx := 0; idx < readers; idx++ {
		var tracked []TrackedWriter
		for w := idx; w < cfg.Writers; w += readers {
			tracked = append(tracked, r.writers[w])
		}
		r.readers = append(r.readers, NewReader(uint64(idx), tracked, st, readerOpts...))
	}
	return r
}

// Writers returns the writers of the run.
func (r *Runner) Writers() []*Writer { return r.writers }

// Readers returns the readers of the run.
func (r *Runner) Readers() []*Reader { return r.readers }

// Run schedules every writer and reader as its own task and blocks until
// all have stopped. The first fatal finding cancels the remaining tasks,
// which then exit cleanly; the finding itself is returned. Cancellation of
// ctx is a clean shutdown and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.writers {
		w := w
		g.Go(func() error { return w.Run(ctx) })
	}
	for _, rd := range r.readers {
		rd := rd
		g.Go(func() error { return rd.Run(ctx) })
	}
	return g.Wait()
}
