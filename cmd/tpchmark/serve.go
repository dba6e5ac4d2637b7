package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DCArch/tpchmark/pkg/api"
	"github.com/DCArch/tpchmark/pkg/config"
	"github.com/DCArch/tpchmark/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve benchmark results over HTTP",
	Long: `Start a read-only HTTP API exposing the run history and the
report files under the results directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	flags := serveCmd.Flags()

	flags.String("listen", "", "listen address")
	flags.String("results-dir", "", "results directory to serve")

	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var history store.Store

	if cfg.History.Enabled {
		history = store.NewStore(log, &cfg.History.Database)

		if err := history.Start(ctx); err != nil {
			return fmt.Errorf("starting history store: %w", err)
		}

		defer func() {
			if err := history.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop history store")
			}
		}()
	}

	server := api.NewServer(log, &cfg.API, cfg.Benchmark.ResultsDir, history)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.WithField("listen", cfg.API.Listen).Info("API server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Received signal, shutting down")
	case <-ctx.Done():
	}

	if err := server.Stop(); err != nil {
		return fmt.Errorf("stopping API server: %w", err)
	}

	return nil
}
