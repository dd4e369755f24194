// Package cmd contains all CLI commands for nexus.
package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var noColor bool

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Multi-client TCP echo and chat server",
	Long: `nexus serves many concurrent TCP clients, either echoing every message
back to its sender or relaying it to all other connected clients.

Examples:
  # Run an echo server on the default port
  nexus serve

  # Run a chat server with an HTTP surface for stats and WebSocket clients
  nexus serve --mode chat --http 127.0.0.1:8080

  # Talk to a running server
  nexus connect 127.0.0.1:9090

  # Show live statistics
  nexus stats 127.0.0.1:8080

Environment Variables:
  NEXUS_*  Every configuration key, e.g. NEXUS_PORT or NEXUS_MAX_CONNECTIONS`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}
