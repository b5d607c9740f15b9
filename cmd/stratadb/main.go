package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratadb-labs/strata-core/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stratadb",
	Short: "Strata - an embedded multi-primitive state database",
	Long: `Strata is a single-node, embedded state database: key-value,
JSON documents, append-only event streams, single-slot state cells,
vectors, and run-scoped lifecycle tracking over one MVCC store and
write-ahead log.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"stratadb version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "On-disk data directory (empty for --ephemeral or --temp)")
	rootCmd.PersistentFlags().Bool("ephemeral", false, "Open an in-memory-only database")
	rootCmd.PersistentFlags().Bool("temp", false, "Open a database in a process-local scratch directory")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file, overrides the flags above")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(kvCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
	})
}
