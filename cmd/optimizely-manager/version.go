package main

import (
	"fmt"

	"github.com/spf13/cobra"

	manager "github.com/asaschachar/optimizely-manager-go"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "optimizely-manager %s\n", manager.Version())
	},
}
