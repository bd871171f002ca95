// Command meshvcsd runs the mesh version-control daemon: it serves the
// HTTP Surface over a mesh repository root, optionally watching the
// filesystem for out-of-band changes and exposing Prometheus metrics.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DSLitvinov/difference-engine/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "meshvcsd",
	Short: "Version-control daemon for mesh repositories",
	Long: `meshvcsd is a local version-control service for 3D asset meshes.

It tracks branches and commits for each mesh as plain directories on
disk, exposes an HTTP API for creating branches, committing snapshots,
and marking a branch correct, and can watch the repository root for
changes made outside the daemon.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, rescanCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed: %v", err)
		os.Exit(1)
	}
}

func applyLogLevel(levelFlag string) {
	level := strings.ToLower(levelFlag)
	switch level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "info":
		logger.SetLevel(logger.INFO)
	case "warn", "warning":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	case "":
		// leave the default logger at its current level
	default:
		fmt.Fprintf(os.Stderr, "unknown log level %q, defaulting to info\n", levelFlag)
		logger.SetLevel(logger.INFO)
	}
}
