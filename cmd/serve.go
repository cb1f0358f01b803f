package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitelens/sitelens/internal/config"
	"github.com/sitelens/sitelens/internal/server"
)

// newServeCmd creates and configures the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the pipeline service",
		Long: `Starts the HTTP API, the job queue, and the pipeline workers, then
blocks until the process receives SIGINT or SIGTERM. Shutdown drains
queued jobs before closing stores and clients.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := server.Build(cmd.Context(), &cfg)
	if err != nil {
		return err
	}
	return app.Run(cmd.Context())
}
