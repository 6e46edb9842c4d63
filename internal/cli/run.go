package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/kvchaos/internal/chaos"
	"github.com/roach88/kvchaos/internal/config"
	"github.com/roach88/kvchaos/internal/store"
	"github.com/roach88/kvchaos/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a chaos run against the configured store",
		Long: `Start writer and verifier streams against the configured store backend.

The run continues until interrupted or until a verifier surfaces a fatal
finding (staleness violation, value mismatch, unresolved prediction,
corruption, or an exhausted retry budget), which terminates the process
with exit code 1 after logging the full diagnostic context.

Example:
  kvchaos run --config ./kvchaos.yaml
  kvchaos run --config ./kvchaos.yaml --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChaos(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to run configuration (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runChaos(opts *RunOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	baseSeed, err := cfg.ResolveBaseSeed()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve base seed", err)
	}

	runID := uuid.NewString()
	slog.Info("chaos run starting",
		"run_id", runID,
		"base_seed", baseSeed,
		"writers", cfg.Writers,
		"readers", cfg.Readers,
		"backend", cfg.Store.Backend)

	runner := chaos.NewRunner(st, chaos.RunnerConfig{
		Writers:   cfg.Writers,
		Readers:   cfg.Readers,
		BaseSeed:  baseSeed,
		Generator: cfg.Generator,
	})

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	fmt.Fprintln(cmd.OutOrStdout(), "Chaos run started. Press Ctrl-C to stop.")
	if err := runner.Run(ctx); err != nil {
		return fatalFinding(runID, err)
	}

	slog.Info("chaos run stopped", "run_id", runID)
	return nil
}

// fatalFinding logs full diagnostics for a chaos finding and converts it to
// a failure exit.
func fatalFinding(runID string, err error) error {
	var v *chaos.Violation
	if errors.As(err, &v) {
		slog.Error("consistency violation", append([]any{"run_id", runID}, v.Fields()...)...)
		return WrapExitError(ExitFailure, "consistency violation detected", err)
	}
	var corrupt *value.CorruptError
	if errors.As(err, &corrupt) {
		slog.Error("stored value corrupted", "run_id", runID, "error", corrupt)
		return WrapExitError(ExitFailure, "stored value corruption detected", err)
	}
	slog.Error("chaos run failed", "run_id", runID, "error", err)
	return WrapExitError(ExitFailure, "chaos run failed", err)
}

// openStore builds the configured backend. The returned close function is
// a no-op for backends without resources to release.
func openStore(cfg config.StoreConfig) (store.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), func() error { return nil }, nil
	case config.BackendSQLite:
		s, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendHTTP:
		return store.NewHTTP(cfg.Addr, nil), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// signalContext derives a context cancelled by SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
