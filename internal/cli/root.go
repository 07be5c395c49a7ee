// Package cli implements the StellarOps command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stellarops",
	Short: "StellarOps — satellite constellation operations backend",
	Long: `StellarOps keeps a live, per-satellite state machine in memory,
accepts and dispatches commands to each satellite with retry/timeout
discipline, detects anomalies from ingested telemetry, and fans events
out to subscribers over a publish/subscribe bus and WebSocket channels.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
