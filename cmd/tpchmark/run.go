package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DCArch/tpchmark/pkg/config"
	"github.com/DCArch/tpchmark/pkg/cpufreq"
	"github.com/DCArch/tpchmark/pkg/fsutil"
	"github.com/DCArch/tpchmark/pkg/harness"
	"github.com/DCArch/tpchmark/pkg/probe"
	"github.com/DCArch/tpchmark/pkg/query"
	"github.com/DCArch/tpchmark/pkg/session"
	"github.com/DCArch/tpchmark/pkg/store"
	"github.com/DCArch/tpchmark/pkg/upload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the TPC-H benchmark suite",
	Long: `Run the full benchmark: warm up the database cache, open the
simulation window, execute the selected TPC-H queries with per-query
timing, close the window, and write a JSON report.

Individual query failures are recorded and do not abort the run. The
command exits non-zero only on connection failure or interruption.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		return runBenchmark(cmd.Context(), cfg)
	},
}

func init() {
	flags := runCmd.Flags()

	flags.String("host", "", "database host")
	flags.Int("port", 0, "database port")
	flags.String("dbname", "", "database name")
	flags.String("user", "", "database user")
	flags.String("password", "", "database password")
	flags.String("query-dir", "", "directory containing TPC-H query files")
	flags.IntSlice("queries", nil, "query numbers to run (default all 22)")
	flags.String("output", "", "report output path")
	flags.Bool("skip-warmup", false, "skip the warmup phase")
	flags.Bool("pin-governor", false, "pin CPUs to the performance governor during the run")
	flags.String("results-owner", "", "UID:GID to apply to written result files")
	flags.Bool("adaptive-warmup", false, "warm up until the target memory threshold is reached")
	flags.Int("warmup-rounds", 0, "maximum adaptive warmup rounds")
	flags.Int("warmup-iterations", 0, "fixed warmup iterations")
	flags.Float64("target-memory", 0, "adaptive warmup target memory in GB")

	rootCmd.AddCommand(runCmd)
}

// flagBindings maps command-line flags onto config keys. Precedence is
// flag > environment (TPCHMARK_*) > config file > default.
var flagBindings = map[string]string{
	"database.host":              "host",
	"database.port":              "port",
	"database.name":              "dbname",
	"database.user":              "user",
	"database.password":          "password",
	"benchmark.query_dir":        "query-dir",
	"benchmark.queries":          "queries",
	"benchmark.output":           "output",
	"benchmark.results_dir":      "results-dir",
	"benchmark.skip_warmup":      "skip-warmup",
	"benchmark.pin_cpu_governor": "pin-governor",
	"benchmark.results_owner":    "results-owner",
	"warmup.adaptive":            "adaptive-warmup",
	"warmup.rounds":              "warmup-rounds",
	"warmup.iterations":          "warmup-iterations",
	"warmup.target_memory_gb":    "target-memory",
	"api.listen":                 "listen",
}

// envKeys lists config keys settable from the environment without a
// matching command-line flag.
var envKeys = []string{
	"global.log_level",
	"database.ssl_mode",
	"instrumentation.extension",
	"warmup.process_pattern",
	"history.enabled",
	"history.database.driver",
	"history.database.sqlite.path",
	"upload.s3.enabled",
	"upload.s3.bucket",
	"upload.s3.prefix",
	"upload.s3.region",
	"upload.s3.endpoint_url",
	"upload.s3.access_key_id",
	"upload.s3.secret_access_key",
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TPCHMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not surface keys absent from the config file
	// to Unmarshal, so every key is bound to its TPCHMARK_* variable
	// explicitly.
	for key, flag := range flagBindings {
		_ = v.BindEnv(key)

		if f := cmd.Flags().Lookup(flag); f != nil {
			bindFlag(v, key, f)
		}
	}

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The config file's log level applies unless --log-level was given.
	if f := cmd.Flags().Lookup("log-level"); f != nil && !f.Changed {
		if level, err := logrus.ParseLevel(cfg.Global.LogLevel); err == nil {
			log.SetLevel(level)
		}
	}

	return cfg, nil
}

// bindFlag registers a pflag with viper only once the flag was actually
// set, so unset flags do not shadow config file values with their zero
// defaults.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if f.Changed {
		_ = v.BindPFlag(key, f)
	}
}

func connConfig(cfg *config.Config) *session.ConnConfig {
	return &session.ConnConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	}
}

func runBenchmark(parent context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Warn("Received signal, stopping benchmark")
		cancel()
	}()

	log.WithFields(map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
	}).Info("Connecting to database")

	sess, err := session.Connect(ctx, log, connConfig(cfg))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to close database session")
		}
	}()

	if cfg.Benchmark.PinCPUGovernor {
		pinner := cpufreq.NewPinner(log, cpufreq.DefaultSysfsPath)

		if err := pinner.Pin(ctx, cpufreq.PerformanceGovernor); err != nil {
			log.WithError(err).Warn("Could not pin CPU governors, timings may be noisier")
		} else {
			defer func() {
				if err := pinner.Restore(context.Background()); err != nil {
					log.WithError(err).Warn("Failed to restore CPU governors")
				}
			}()
		}
	}

	loader := query.NewDirLoader(log, cfg.Benchmark.QueryDir)

	var memProbe probe.Probe
	if cfg.Warmup.Adaptive {
		memProbe = probe.NewProcessProbe(log, cfg.Warmup.ProcessPattern)
	}

	runner := harness.NewRunner(
		log,
		harness.NewWarmer(log, loader, memProbe),
		harness.NewInstrumenter(log, cfg.Instrumentation.Extension),
		harness.NewExecutor(log, loader),
	)

	started := time.Now()

	report, runErr := runner.Run(ctx, sess, harness.RunOptions{
		Selection:      cfg.Benchmark.Queries,
		SkipWarmup:     cfg.Benchmark.SkipWarmup,
		AdaptiveWarmup: cfg.Warmup.Adaptive,
		Warmup: harness.WarmupOptions{
			Iterations:     cfg.Warmup.Iterations,
			Rounds:         cfg.Warmup.Rounds,
			TargetMemoryGB: cfg.Warmup.TargetMemoryGB,
		},
	})

	if report != nil {
		report.Summarize(os.Stdout)

		// Persistence must survive cancellation so interrupted runs still
		// leave a report behind.
		if err := persistReport(context.Background(), cfg, report, started, wasInterrupted(runErr)); err != nil {
			log.WithError(err).Error("Failed to persist benchmark report")

			if runErr == nil {
				runErr = err
			}
		}
	}

	if runErr != nil {
		return fmt.Errorf("running benchmark: %w", runErr)
	}

	return nil
}

// wasInterrupted distinguishes an operator-cancelled run from one that
// failed on its own, such as a commit or deactivation error. Only the
// former is recorded as interrupted in the run history.
func wasInterrupted(runErr error) bool {
	return errors.Is(runErr, context.Canceled)
}

func persistReport(ctx context.Context, cfg *config.Config, report *harness.Report, started time.Time, interrupted bool) error {
	outPath := cfg.Benchmark.Output
	if outPath == "" {
		runID := fmt.Sprintf("%d_%s", started.Unix(), uuid.New().String()[:8])
		outPath = filepath.Join(cfg.Benchmark.ResultsDir, runID, "report.json")
	}

	if err := harness.WriteReport(outPath, report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	log.WithField("path", outPath).Info("Benchmark report written")

	owner, err := fsutil.ParseOwner(cfg.Benchmark.ResultsOwner)
	if err != nil {
		return fmt.Errorf("parsing results owner: %w", err)
	}

	fsutil.ChownTree(filepath.Dir(outPath), owner)

	if cfg.History.Enabled {
		if err := recordRun(ctx, cfg, report, started, outPath, interrupted); err != nil {
			log.WithError(err).Warn("Failed to record run in history store")
		}
	}

	if cfg.Upload != nil && cfg.Upload.S3 != nil && cfg.Upload.S3.Enabled {
		if err := uploadReport(ctx, cfg, outPath); err != nil {
			log.WithError(err).Warn("Failed to upload benchmark report")
		}
	}

	return nil
}

func recordRun(ctx context.Context, cfg *config.Config, report *harness.Report, started time.Time, outPath string, interrupted bool) error {
	hist := store.NewStore(log, &cfg.History.Database)

	if err := hist.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}

	defer func() {
		if err := hist.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop history store")
		}
	}()

	record := &store.RunRecord{
		StartedAt:   started,
		Queries:     len(report.QueryIDs()),
		Succeeded:   report.SuccessCount(),
		Failed:      report.FailedCount(),
		TotalTime:   report.TotalTime(),
		ReportPath:  outPath,
		Interrupted: interrupted,
	}

	if err := hist.RecordRun(ctx, record); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	return nil
}

func uploadReport(ctx context.Context, cfg *config.Config, outPath string) error {
	uploader, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("upload preflight: %w", err)
	}

	if err := uploader.Upload(ctx, filepath.Dir(outPath)); err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}

	return nil
}
