// Package cmd defines and implements the CLI commands for the sitelens executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitelens",
		Short: "Site screenshot and performance audit pipeline.",
		Long: `sitelens crawls a site breadth-first, captures full-page screenshots,
audits page load performance in a headless browser, and publishes one
report per job. Jobs are tracked through a polling API.`,
	}

	cmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (defaults plus SITELENS_ env vars apply without one)",
	)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
