package run

import "github.com/spf13/cobra"

// NewRunCmd returns the parent "run" command for one-shot invocations,
// useful when no external scheduler is wired up yet.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scheduled job invocation and exit",
	}
	// attach subcommands
	cmd.AddCommand(queueCmd)
	cmd.AddCommand(lifecycleCmd)

	return cmd
}
