package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultQueryDir is the default directory containing <id>.sql files.
	DefaultQueryDir = "./queries"

	// DefaultResultsDir is the default directory for benchmark results.
	DefaultResultsDir = "./results"

	// DefaultExtension is the default instrumentation extension name.
	DefaultExtension = "dcsim"

	// DefaultWarmupRounds is the default number of adaptive warmup rounds.
	DefaultWarmupRounds = 3

	// DefaultWarmupIterations is the default fixed warmup iteration count.
	DefaultWarmupIterations = 1

	// DefaultTargetMemoryGB is the default adaptive warmup memory target.
	DefaultTargetMemoryGB = 128.0

	// DefaultProcessPattern matches the database server processes sampled
	// by the memory probe.
	DefaultProcessPattern = "postgres"
)

// Config is the root configuration for tpchmark.
type Config struct {
	Global          GlobalConfig          `yaml:"global" mapstructure:"global"`
	Database        DatabaseConfig        `yaml:"database" mapstructure:"database"`
	Benchmark       BenchmarkConfig       `yaml:"benchmark" mapstructure:"benchmark"`
	Warmup          WarmupConfig          `yaml:"warmup" mapstructure:"warmup"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation" mapstructure:"instrumentation"`
	History         HistoryConfig         `yaml:"history,omitempty" mapstructure:"history"`
	API             APIConfig             `yaml:"api,omitempty" mapstructure:"api"`
	Upload          *UploadConfig         `yaml:"upload,omitempty" mapstructure:"upload"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DatabaseConfig contains connection parameters for the database under test.
type DatabaseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Name     string `yaml:"name" mapstructure:"name"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// BenchmarkConfig contains settings for the measured query run.
type BenchmarkConfig struct {
	QueryDir   string `yaml:"query_dir" mapstructure:"query_dir"`
	Queries    []int  `yaml:"queries,omitempty" mapstructure:"queries"`
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"`
	Output     string `yaml:"output,omitempty" mapstructure:"output"`
	SkipWarmup bool   `yaml:"skip_warmup,omitempty" mapstructure:"skip_warmup"`

	// PinCPUGovernor switches all CPUs to the performance governor for the
	// duration of the run. Requires root.
	PinCPUGovernor bool `yaml:"pin_cpu_governor,omitempty" mapstructure:"pin_cpu_governor"`

	// ResultsOwner is a UID:GID pair applied to written result files.
	ResultsOwner string `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
}

// WarmupConfig contains cache warmup settings.
type WarmupConfig struct {
	Adaptive       bool    `yaml:"adaptive,omitempty" mapstructure:"adaptive"`
	Iterations     int     `yaml:"iterations,omitempty" mapstructure:"iterations"`
	Rounds         int     `yaml:"rounds,omitempty" mapstructure:"rounds"`
	TargetMemoryGB float64 `yaml:"target_memory_gb,omitempty" mapstructure:"target_memory_gb"`
	ProcessPattern string  `yaml:"process_pattern,omitempty" mapstructure:"process_pattern"`
}

// InstrumentationConfig names the simulation extension whose start/end
// calls bracket the measured window.
type InstrumentationConfig struct {
	Extension string `yaml:"extension" mapstructure:"extension"`
}

// HistoryConfig enables recording of run summaries to a database.
type HistoryConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Database StoreDBConfig `yaml:"database" mapstructure:"database"`
}

// StoreDBConfig selects and configures the history store backend.
type StoreDBConfig struct {
	Driver   string              `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig        `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres StorePostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite settings for the history store.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// StorePostgresConfig contains PostgreSQL settings for the history store.
// This is a separate database from the one under test.
type StorePostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// APIConfig contains the results API server settings.
type APIConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig contains per-IP request rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute,omitempty" mapstructure:"requests_per_minute"`
}

// UploadConfig contains result upload settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings for report upload.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty" mapstructure:"force_path_style"`
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, for running
// without a config file (flags and env supply the rest).
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults sets default values for unspecified configuration options.
func (c *Config) ApplyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}

	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}

	if c.Database.Name == "" {
		c.Database.Name = "tpch"
	}

	if c.Database.User == "" {
		c.Database.User = "postgres"
	}

	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Benchmark.QueryDir == "" {
		c.Benchmark.QueryDir = DefaultQueryDir
	}

	if c.Benchmark.ResultsDir == "" {
		c.Benchmark.ResultsDir = DefaultResultsDir
	}

	if c.Warmup.Iterations == 0 {
		c.Warmup.Iterations = DefaultWarmupIterations
	}

	if c.Warmup.Rounds == 0 {
		c.Warmup.Rounds = DefaultWarmupRounds
	}

	if c.Warmup.TargetMemoryGB == 0 {
		c.Warmup.TargetMemoryGB = DefaultTargetMemoryGB
	}

	if c.Warmup.ProcessPattern == "" {
		c.Warmup.ProcessPattern = DefaultProcessPattern
	}

	if c.Instrumentation.Extension == "" {
		c.Instrumentation.Extension = DefaultExtension
	}

	if c.History.Enabled && c.History.Database.Driver == "" {
		c.History.Database.Driver = "sqlite"
	}

	if c.History.Database.Driver == "sqlite" && c.History.Database.SQLite.Path == "" {
		c.History.Database.SQLite.Path = filepath.Join(c.Benchmark.ResultsDir, "history.db")
	}

	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}

	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerMinute == 0 {
		c.API.RateLimit.RequestsPerMinute = 120
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port %d", c.Database.Port)
	}

	for _, id := range c.Benchmark.Queries {
		if id < 1 {
			return fmt.Errorf("invalid query identifier %d: must be positive", id)
		}
	}

	if c.Benchmark.ResultsOwner != "" {
		parts := strings.Split(c.Benchmark.ResultsOwner, ":")
		if len(parts) != 2 {
			return fmt.Errorf("invalid results_owner %q: expected UID:GID", c.Benchmark.ResultsOwner)
		}
	}

	if c.Warmup.Iterations < 1 {
		return fmt.Errorf("warmup iterations must be at least 1")
	}

	if c.Warmup.Rounds < 1 {
		return fmt.Errorf("warmup rounds must be at least 1")
	}

	if c.Warmup.Adaptive && c.Warmup.TargetMemoryGB <= 0 {
		return fmt.Errorf("adaptive warmup requires a positive target_memory_gb")
	}

	if c.History.Enabled {
		switch c.History.Database.Driver {
		case "sqlite":
			if c.History.Database.SQLite.Path == "" {
				return fmt.Errorf("history sqlite path is required")
			}
		case "postgres":
			if c.History.Database.Postgres.Host == "" {
				return fmt.Errorf("history postgres host is required")
			}
		default:
			return fmt.Errorf("unsupported history database driver: %s", c.History.Database.Driver)
		}
	}

	if c.Upload != nil && c.Upload.S3 != nil && c.Upload.S3.Enabled && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when S3 upload is enabled")
	}

	return nil
}
