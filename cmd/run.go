package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitelens/sitelens/internal/config"
	"github.com/sitelens/sitelens/internal/server"
	"github.com/sitelens/sitelens/internal/store"
)

var runMaxPages int

// newRunCmd creates and configures the 'run' subcommand. It executes one job
// in the foreground without starting the HTTP API, which is handy for local
// smoke runs and cron-style captures.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <start-url>",
		Short: "Runs a single job in the foreground",
		Long: `Submits one job for the given start URL, waits for the pipeline to
finish it, and prints the job outcome. The exit code reflects the
final job status.`,
		Args: cobra.ExactArgs(1),
		RunE: runRunCommand,
	}
	cmd.Flags().IntVar(
		&runMaxPages,
		"max-pages",
		0,
		"page budget for this job (0 uses the configured default)",
	)
	return cmd
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := server.Build(cmd.Context(), &cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := app.Close(closeCtx); cerr != nil {
			fmt.Fprintf(os.Stderr, "close failed: %v\n", cerr)
		}
	}()

	rec, err := app.RunJob(cmd.Context(), args[0], runMaxPages)
	if err != nil {
		return err
	}

	fmt.Printf("job %s: %s\n", rec.ID, rec.Status)
	if rec.Message != "" {
		fmt.Println(rec.Message)
	}
	if rec.ReportPath != "" {
		fmt.Printf("report: %s\n", rec.ReportPath)
	}
	if rec.Status != store.JobCompleted {
		if rec.Error != "" {
			return fmt.Errorf("job failed during %s: %s", rec.Stage, rec.Error)
		}
		return fmt.Errorf("job finished %s", rec.Status)
	}
	return nil
}
