// Package main provides the marksync CLI: one-shot sync runs, the sync
// daemon and read-only views of the committed state.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/version"
)

// Global flags
var (
	jsonOutput bool
	stateFile  string
)

var rootCmd = &cobra.Command{
	Use:   "marksync",
	Short: "Incrementally sync and enrich bookmarks",
	Long: `marksync fetches your bookmarks, processes only what changed since the
last run and keeps a durable local state of enriched records.

Configuration comes from MARKSYNC_* environment variables.

Examples:
  marksync run              # Sync once
  marksync run --dry-run    # Show what would be processed
  marksync daemon           # Sync periodically and serve the HTTP API
  marksync stats --json     # Summarize the committed state`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state", "", "State file (overrides MARKSYNC_STATE_FILE)")

	rootCmd.AddCommand(runCmd, daemonCmd, statsCmd, renderCmd)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() *config.Config {
	cfg := config.Load()
	if stateFile != "" {
		cfg.StateFile = stateFile
	}
	return cfg
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.NewWithFile(cfg.LogLevel, cfg.PrettyLog, logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  20,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ marksync: %v\n", err)
		os.Exit(1)
	}
}
