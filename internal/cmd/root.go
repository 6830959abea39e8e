// Package cmd implements the mergebot CLI: `serve` runs the dispatcher as a
// long-lived webhook listener, `status` prints current per-branch state,
// `version` prints build info. Grounded on the teacher's internal/cmd
// package-of-cobra-commands idiom (one file per command, a shared rootCmd
// commands attach to from their own init()).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mergebot",
	Short: "A GitHub pull-request merge queue bot",
	Long: `mergebot runs one merge-queue state machine per target branch,
integrating labeled pull requests one at a time, running their status
checks, and merging them, or on failure commenting and removing them from
the queue.`,
	SilenceUsage: true,
}

// configPath is the shared --config flag every subcommand reads from.
var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mergebot.toml", "path to the TOML configuration file")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
