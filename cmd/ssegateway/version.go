package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildVersion is set via -ldflags "-X main.buildVersion=..." at release
// build time; left at "dev" for local builds.
var buildVersion = "dev"

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the gateway version",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("ssegateway " + buildVersion)
		return nil
	},
}
