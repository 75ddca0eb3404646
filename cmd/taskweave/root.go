package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskweave",
	Short: "Agent coordination engine",
	Long: `Taskweave coordinates a pool of specialized agents working on a
shared todo backlog.

Core capabilities:
- Tracks agent capacity and availability in a live registry
- Transfers work between agents via structured handoffs
- Drives multi-step workflows with dependencies and reviews
- Shares versioned files with cooperative locking
- Routes templated notifications with per-agent preferences
- Mediates conflicts with a bounded escalation ladder`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
