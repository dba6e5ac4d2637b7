package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	content := `
global:
  log_level: debug
database:
  host: db.internal
  port: 5433
  name: tpch_sf100
  user: bench
  password: secret
benchmark:
  query_dir: /opt/tpch/queries
  queries: [1, 6, 14]
warmup:
  adaptive: true
  target_memory_gb: 64
instrumentation:
  extension: dcsim
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "tpch_sf100", cfg.Database.Name)
	assert.Equal(t, "bench", cfg.Database.User)
	assert.Equal(t, "/opt/tpch/queries", cfg.Benchmark.QueryDir)
	assert.Equal(t, []int{1, 6, 14}, cfg.Benchmark.Queries)
	assert.True(t, cfg.Warmup.Adaptive)
	assert.Equal(t, 64.0, cfg.Warmup.TargetMemoryGB)
	assert.Equal(t, "dcsim", cfg.Instrumentation.Extension)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [not a map"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "tpch", cfg.Database.Name)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, DefaultQueryDir, cfg.Benchmark.QueryDir)
	assert.Equal(t, DefaultResultsDir, cfg.Benchmark.ResultsDir)
	assert.Equal(t, DefaultWarmupIterations, cfg.Warmup.Iterations)
	assert.Equal(t, DefaultWarmupRounds, cfg.Warmup.Rounds)
	assert.Equal(t, DefaultTargetMemoryGB, cfg.Warmup.TargetMemoryGB)
	assert.Equal(t, DefaultProcessPattern, cfg.Warmup.ProcessPattern)
	assert.Equal(t, DefaultExtension, cfg.Instrumentation.Extension)
	assert.Equal(t, ":8080", cfg.API.Listen)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Host = "custom"
	cfg.Warmup.Rounds = 7
	cfg.Instrumentation.Extension = "tracer"

	cfg.ApplyDefaults()

	assert.Equal(t, "custom", cfg.Database.Host)
	assert.Equal(t, 7, cfg.Warmup.Rounds)
	assert.Equal(t, "tracer", cfg.Instrumentation.Extension)
}

func TestApplyDefaultsHistorySQLitePath(t *testing.T) {
	cfg := &Config{}
	cfg.History.Enabled = true
	cfg.ApplyDefaults()

	assert.Equal(t, "sqlite", cfg.History.Database.Driver)
	assert.Equal(t, filepath.Join(DefaultResultsDir, "history.db"), cfg.History.Database.SQLite.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(cfg *Config)
		errContains string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name: "missing host",
			mutate: func(cfg *Config) {
				cfg.Database.Host = ""
			},
			errContains: "database host is required",
		},
		{
			name: "port out of range",
			mutate: func(cfg *Config) {
				cfg.Database.Port = 70000
			},
			errContains: "invalid database port",
		},
		{
			name: "non-positive query identifier",
			mutate: func(cfg *Config) {
				cfg.Benchmark.Queries = []int{1, 0}
			},
			errContains: "invalid query identifier",
		},
		{
			name: "malformed results owner",
			mutate: func(cfg *Config) {
				cfg.Benchmark.ResultsOwner = "1000"
			},
			errContains: "results_owner",
		},
		{
			name: "negative warmup iterations",
			mutate: func(cfg *Config) {
				cfg.Warmup.Iterations = -1
			},
			errContains: "warmup iterations",
		},
		{
			name: "adaptive warmup without target",
			mutate: func(cfg *Config) {
				cfg.Warmup.Adaptive = true
				cfg.Warmup.TargetMemoryGB = -5
			},
			errContains: "target_memory_gb",
		},
		{
			name: "unsupported history driver",
			mutate: func(cfg *Config) {
				cfg.History.Enabled = true
				cfg.History.Database.Driver = "oracle"
			},
			errContains: "unsupported history database driver",
		},
		{
			name: "history postgres without host",
			mutate: func(cfg *Config) {
				cfg.History.Enabled = true
				cfg.History.Database.Driver = "postgres"
			},
			errContains: "history postgres host is required",
		},
		{
			name: "s3 upload without bucket",
			mutate: func(cfg *Config) {
				cfg.Upload = &UploadConfig{S3: &S3UploadConfig{Enabled: true}}
			},
			errContains: "upload.s3.bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errContains == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}
