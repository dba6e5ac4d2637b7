package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DCArch/tpchmark/pkg/config"
	"github.com/DCArch/tpchmark/pkg/harness"
	"github.com/DCArch/tpchmark/pkg/probe"
	"github.com/DCArch/tpchmark/pkg/query"
	"github.com/DCArch/tpchmark/pkg/session"
)

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Warm the database cache without running the benchmark",
	Long: `Repeatedly execute the representative query subset until the
database server's resident memory reaches the configured target, then
exit. Useful for priming caches ahead of a manually timed run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		return runWarmup(cmd.Context(), cfg)
	},
}

func init() {
	flags := warmupCmd.Flags()

	flags.String("host", "", "database host")
	flags.Int("port", 0, "database port")
	flags.String("dbname", "", "database name")
	flags.String("user", "", "database user")
	flags.String("password", "", "database password")
	flags.String("query-dir", "", "directory containing TPC-H query files")
	flags.Int("warmup-rounds", 0, "maximum warmup rounds")
	flags.Float64("target-memory", 0, "target memory in GB")

	rootCmd.AddCommand(warmupCmd)
}

func runWarmup(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Warn("Received signal, stopping warmup")
		cancel()
	}()

	sess, err := session.Connect(ctx, log, connConfig(cfg))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to close database session")
		}
	}()

	memProbe := probe.NewProcessProbe(log, cfg.Warmup.ProcessPattern)

	log.WithFields(map[string]interface{}{
		"initial_memory_gb": fmt.Sprintf("%.2f", memProbe.CurrentMemoryGB(ctx)),
		"target_memory_gb":  cfg.Warmup.TargetMemoryGB,
		"max_rounds":        cfg.Warmup.Rounds,
	}).Info("Starting warmup")

	warmer := harness.NewWarmer(log, query.NewDirLoader(log, cfg.Benchmark.QueryDir), memProbe)

	reached, err := warmer.RunAdaptive(ctx, sess, harness.WarmupOptions{
		Rounds:         cfg.Warmup.Rounds,
		TargetMemoryGB: cfg.Warmup.TargetMemoryGB,
	})
	if err != nil {
		return fmt.Errorf("running warmup: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"final_memory_gb": fmt.Sprintf("%.2f", memProbe.CurrentMemoryGB(ctx)),
		"target_reached":  reached,
	}).Info("Warmup complete")

	return nil
}
