package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the cursia binary.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cursia",
		Short:         "Cursia course platform API",
		Long:          "Serves the Cursia API, runs the course generation worker and the maintenance tasks.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewWorkerCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewSeedCommand())
	cmd.AddCommand(NewExpireSubscriptionsCommand())

	return cmd
}
