package cli

import (
	"github.com/NicoHurtado/cursia-sub002/app"
	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	WithWorker bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

The scheduler starts unless CRON_ENABLED=false. Pass --worker=false when the
generation worker runs as its own process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.SetupAndRunServer(opts.WithWorker)
		},
	}

	cmd.Flags().BoolVar(&opts.WithWorker, "worker", true, "consume generation jobs in this process")

	return cmd
}

// NewWorkerCommand creates the worker command.
func NewWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume course generation jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWorker()
		},
	}
}
