package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "circulation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func Test_Load_WithoutFileReturnsDefaults(t *testing.T) {
	// act
	cfg, err := config.Load("")

	// assert
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
}

func Test_Load_ReadsTheFile(t *testing.T) {
	// arrange
	path := writeConfig(t, `
library_name: City Library
handoff_policy: try_next
policies:
  student:
    loan_days: 21
    max_items: 4
  researcher:
    loan_days: 90
    max_items: 20
    privileged: true
scan:
  schedule: "@hourly"
  timeout: 30s
journal:
  driver: pgx
  dsn: postgres://localhost/library
notify:
  dedupe_ttl: 12h
  rate_per_second: 5
  burst: 10
log:
  level: debug
  format: json
`)

	// act
	cfg, err := config.Load(path)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "City Library", cfg.LibraryName)
	assert.Equal(t, "@hourly", cfg.Scan.Schedule)
	assert.Equal(t, 30*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, config.JournalPGX, cfg.Journal.Driver)
	assert.True(t, cfg.Journal.Migrate)
	assert.Equal(t, 12*time.Hour, cfg.Notify.DedupeTTL)
	assert.Equal(t, "circulation.notices", cfg.Redis.Channel)

	handOff, err := cfg.HandOff()
	require.NoError(t, err)
	assert.Equal(t, circulation.HandOffTryNext, handOff)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	policies, err := cfg.PolicyTable()
	require.NoError(t, err)
	assert.Equal(t, circulation.Policy{LoanDays: 21, MaxItems: 4}, policies[circulation.CategoryStudent])
	assert.Equal(t, circulation.Policy{LoanDays: 30, MaxItems: 5}, policies[circulation.CategoryTeacher])
	assert.Equal(t, circulation.Policy{LoanDays: 90, MaxItems: 20, Privileged: true}, policies["Researcher"])
}

func Test_Load_EnvironmentOverridesTheFile(t *testing.T) {
	// arrange
	path := writeConfig(t, "library_name: City Library\n")
	t.Setenv("CIRCULATION_LIBRARY_NAME", "Harbor Library")
	t.Setenv("CIRCULATION_REDIS_ADDR", "localhost:6379")
	t.Setenv("CIRCULATION_SCAN_TIMEOUT", "2m")

	// act
	cfg, err := config.Load(path)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "Harbor Library", cfg.LibraryName)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Timeout)
}

func Test_Load_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func Test_Validate_RejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "blank library name", mutate: func(c *config.Config) { c.LibraryName = " " }},
		{name: "unknown hand-off policy", mutate: func(c *config.Config) { c.HandOffPolicy = "lottery" }},
		{name: "non-positive policy", mutate: func(c *config.Config) {
			c.Policies = map[string]config.PolicyConfig{"guest": {LoanDays: 0, MaxItems: 1}}
		}},
		{name: "unknown journal driver", mutate: func(c *config.Config) { c.Journal.Driver = "mongo" }},
		{name: "sql journal without dsn", mutate: func(c *config.Config) { c.Journal.Driver = config.JournalSQL }},
		{name: "no journal attempts", mutate: func(c *config.Config) { c.Journal.RetryAttempts = 0 }},
		{name: "migration of a custom table", mutate: func(c *config.Config) { c.Journal.Table = "audit" }},
		{name: "otel metrics without interval", mutate: func(c *config.Config) {
			c.Metrics.Backend = config.MetricsOTel
			c.Metrics.Interval = 0
		}},
		{name: "throttling without burst", mutate: func(c *config.Config) { c.Notify.Burst = 0 }},
		{name: "unknown metrics backend", mutate: func(c *config.Config) { c.Metrics.Backend = "statsd" }},
		{name: "unknown log level", mutate: func(c *config.Config) { c.Log.Level = "chatty" }},
		{name: "unknown log format", mutate: func(c *config.Config) { c.Log.Format = "xml" }},
		{name: "unknown tracing exporter", mutate: func(c *config.Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// arrange
			cfg := config.Defaults()
			tt.mutate(&cfg)

			// act
			err := cfg.Validate()

			// assert
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}
