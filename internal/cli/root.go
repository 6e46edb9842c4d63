// Package cli wires the kvchaos commands: run (drive a chaos run), serve
// (host the HTTP store target) and init (dump a default configuration).
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the kvchaos CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kvchaos",
		Short: "Chaos and consistency harness for key-value stores",
		Long: `kvchaos drives deterministic write streams into a key-value store while
independent verifier streams replay the identical operation sequences and
check a bounded-staleness consistency contract against what the store
actually serves.`,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))

	return cmd
}
