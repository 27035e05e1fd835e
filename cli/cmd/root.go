// Package cmd contains the sentrixctl command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sentrix-systems/sentrix/cli/internal/client"
)

var (
	serverURL    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "sentrixctl",
	Short: "Sentrix CLI",
	Long: `sentrixctl is the command-line interface for the Sentrix threat
detection pipeline.

Register event sources, rotate API keys, seed telemetry, inspect threats
and alerts, and trigger processing cycles from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8086", "Sentrix server URL")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json")
}

func apiClient() *client.Client {
	return client.New(serverURL)
}
