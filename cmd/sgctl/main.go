package main

import (
	"os"

	"github.com/alfredjeanlab/ssegateway/internal/ui"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sgctl",
	Short: "Operator CLI for an ssegateway instance's push API",
}

func init() {
	if !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "system", Title: "System:"},
		&cobra.Group{ID: "gateway", Title: "Gateway:"},
	)

	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(channelCmd)
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
