package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kvchaos/internal/config"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Config string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default run configuration",
		Long: `Write a default run configuration to the given path.

The generated file passes validation as-is and is meant to be edited:
writer/reader counts, the store backend, and the generated key and
value length intervals all live there.

Example:
  kvchaos init --config chaos.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to write the configuration to (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runInit(opts *InitOptions) error {
	setupLogging(opts.Verbose)

	if _, err := os.Stat(opts.Config); err == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("refusing to overwrite existing file: %s", opts.Config))
	} else if !errors.Is(err, os.ErrNotExist) {
		return WrapExitError(ExitCommandError, "failed to stat config path", err)
	}

	data, err := config.Default().Encode()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode configuration", err)
	}
	if err := os.WriteFile(opts.Config, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write configuration", err)
	}

	slog.Info("configuration written", "path", opts.Config)
	return nil
}
