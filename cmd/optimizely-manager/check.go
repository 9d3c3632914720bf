package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	manager "github.com/asaschachar/optimizely-manager-go"
)

var checkCmd = &cobra.Command{
	Use:   "check FEATURE",
	Short: "Print whether a feature is enabled for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		options, cleanup, err := managerOptions(cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		options.DatafileOptions.LiveUpdates = manager.Bool(false)

		manager.Configure(options)
		defer manager.Reset()

		m, err := manager.GetClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
		defer cancel()
		if err := m.WaitForReady(ctx); err != nil {
			return fmt.Errorf("datafile not available after %s: %w", cfg.Timeout, err)
		}

		enabled := m.IsFeatureEnabled(args[0], cfg.UserID)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %t\n", args[0], enabled)
		return nil
	},
}

func init() {
	checkCmd.Flags().String("user-id", "", "user to evaluate the feature for. Random when empty.")
	checkCmd.Flags().Duration("timeout", 10*time.Second, "how long to wait for the datafile")
}
