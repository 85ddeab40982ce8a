package main

import (
	"os"

	"github.com/alfredjeanlab/ssegateway/internal/ui"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ssegateway",
	Short: "SSE fan-out gateway: connection registry, router, and multi-instance coordination",
}

func init() {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "system", Title: "System:"},
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
