package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kvchaos/internal/server"
	"github.com/roach88/kvchaos/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Latency  time.Duration
	FailRate float64
	Seed     uint64
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the HTTP store target",
		Long: `Host the key-value store the http backend of a chaos run points at.

The store is in-memory by default, or durable when --db names a SQLite
file. --latency and --fail-rate inject chaos on the server side so the
harness's retry budgets and staleness tolerance get exercised.

Example:
  kvchaos serve --addr :8080
  kvchaos serve --addr :8080 --db ./target.db --latency 5ms --fail-rate 0.05`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database path (in-memory store when empty)")
	cmd.Flags().DurationVar(&opts.Latency, "latency", 0, "injected per-request latency")
	cmd.Flags().Float64Var(&opts.FailRate, "fail-rate", 0, "fraction of requests failed with 503")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "seed for the failure-injection pattern")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	if opts.FailRate < 0 || opts.FailRate >= 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--fail-rate %v outside [0, 1)", opts.FailRate))
	}

	var st store.Store
	if opts.Database != "" {
		s, err := store.OpenSQLite(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := s.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		st = s
	} else {
		st = store.NewMemory()
	}

	srv := server.New(st,
		server.WithLatency(opts.Latency),
		server.WithFailRate(opts.FailRate, opts.Seed))

	httpSrv := &http.Server{
		Addr:    opts.Addr,
		Handler: srv.Handler(),
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("store server listening",
			"addr", opts.Addr, "latency", opts.Latency, "fail_rate", opts.FailRate)
		errChan <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server error", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return WrapExitError(ExitFailure, "shutdown error", err)
		}
	}

	slog.Info("store server stopped")
	return nil
}
