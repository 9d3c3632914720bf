package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	manager "github.com/asaschachar/optimizely-manager-go"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the datafile and print every new revision",
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

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.MetricsAddr != "" {
			srv := serveMetrics(cfg.MetricsAddr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		m := manager.Configure(options)
		defer manager.Reset()

		return watch(ctx, m, options.DatafileOptions.UpdateInterval, func(revision string) {
			fmt.Fprintf(cmd.OutOrStdout(), "revision %s from %s\n", revision, m.URL())
		})
	},
}

func watch(ctx context.Context, m *manager.DatafileManager, interval time.Duration, onRevision func(string)) error {
	if interval <= 0 {
		interval = manager.DefaultUpdateInterval
	}
	if err := m.WaitForReady(ctx); err != nil {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		if revision := m.Datafile().RevisionString(); revision != last {
			last = revision
			onRevision(revision)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
