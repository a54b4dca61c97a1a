package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "spread-scanner",
	Short: "Binary prediction-market spread scanner",
	Long: `Spread scanner watches binary prediction markets for the window of
time their YES/NO combined best-ask price sits below 1.0, classifies and
times that window, and persists it for later analysis.

It polls a market catalog for newly eligible markets, subscribes to their
order books over a websocket feed, detects open/close spread windows, and
periodically rolls up per-market statistics.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// Flags can be added here if needed
}
