package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log = logrus.New()
	log.SetOutput(io.Discard)
}

func TestLoadConfigFromEnvWithoutConfigFile(t *testing.T) {
	t.Setenv("TPCHMARK_DATABASE_HOST", "db.internal")
	t.Setenv("TPCHMARK_DATABASE_PASSWORD", "hunter2")
	t.Setenv("TPCHMARK_DATABASE_SSL_MODE", "require")
	t.Setenv("TPCHMARK_WARMUP_ROUNDS", "7")

	cfg, err := loadConfig(runCmd)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 7, cfg.Warmup.Rounds)

	// Untouched keys still get their defaults.
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "tpch", cfg.Database.Name)
}

func TestLoadConfigEnvOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: file-host
  port: 5433
`), 0o644))

	orig := cfgFile
	cfgFile = path

	t.Cleanup(func() { cfgFile = orig })

	t.Setenv("TPCHMARK_DATABASE_HOST", "env-host")

	cfg, err := loadConfig(runCmd)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
}

func TestWasInterrupted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "cancelled context",
			err:  context.Canceled,
			want: true,
		},
		{
			name: "wrapped cancellation",
			err:  fmt.Errorf("executing queries: %w", context.Canceled),
			want: true,
		},
		{
			name: "commit failure",
			err:  errors.New("committing after query 6: connection reset"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wasInterrupted(tt.err))
		})
	}
}
