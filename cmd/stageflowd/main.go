// Stageflowd is the cross-stage workflow orchestration daemon.
//
// It exposes workflow, knowledge-transfer, and reference tools over the
// MCP stdio transport, with an optional read-only HTTP API for operators.
// State lives in memory, optionally persisted to NATS JetStream key-value
// buckets.
//
// Usage:
//
//	# Start with defaults (memory store, MCP on stdio)
//	stageflowd
//
//	# Start against a NATS-backed store
//	STAGEFLOW_STORE_BACKEND=nats stageflowd
//
//	# Use a config file
//	stageflowd --config /etc/stageflow/config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stageflowd",
	Short: "Cross-stage workflow orchestration daemon",
	Long: `stageflowd orchestrates multi-stage workflows and carries knowledge
context across stage boundaries. It serves MCP tools on stdio and can
expose a read-only HTTP API for inspection.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stageflowd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/stageflow/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stageflowd: %v\n", err)
		os.Exit(1)
	}
}
