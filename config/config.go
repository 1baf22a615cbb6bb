// Package config loads the circulation daemon configuration from a YAML file and CIRCULATION_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/viper"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/journal/postgresjournal"
)

// EnvPrefix prefixes environment overrides, e.g. CIRCULATION_JOURNAL_DSN.
const EnvPrefix = "CIRCULATION"

// Journal drivers.
const (
	JournalNone   = "none"
	JournalMemory = "memory"
	JournalPGX    = "pgx"
	JournalSQL    = "sql"
	JournalSQLX   = "sqlx"
)

// Metrics backends.
const (
	MetricsPrometheus = "prometheus"
	MetricsOTel       = "otel"
)

// Tracing exporters.
const (
	TracingStdout = "stdout"
	TracingOTLP   = "otlp"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all daemon settings.
type Config struct {
	LibraryName   string                  `mapstructure:"library_name"`
	HandOffPolicy string                  `mapstructure:"handoff_policy"`
	Policies      map[string]PolicyConfig `mapstructure:"policies"`
	Scan          ScanConfig              `mapstructure:"scan"`
	Journal       JournalConfig           `mapstructure:"journal"`
	Redis         RedisConfig             `mapstructure:"redis"`
	Notify        NotifyConfig            `mapstructure:"notify"`
	Metrics       MetricsConfig           `mapstructure:"metrics"`
	Log           LogConfig               `mapstructure:"log"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
}

// PolicyConfig overrides or adds the entitlement of one holder category.
type PolicyConfig struct {
	LoanDays   int  `mapstructure:"loan_days"`
	MaxItems   int  `mapstructure:"max_items"`
	Privileged bool `mapstructure:"privileged"`
}

// ScanConfig schedules the overdue scan. An empty schedule disables it.
type ScanConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// JournalConfig selects where committed transitions are journaled.
// RetryAttempts bounds the attempts per database call, the first one included.
type JournalConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	Table         string `mapstructure:"table"`
	Migrate       bool   `mapstructure:"migrate"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
}

// RedisConfig enables publishing notices when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// NotifyConfig shapes notice delivery. A zero DedupeTTL or RatePerSecond disables that stage.
type NotifyConfig struct {
	DedupeTTL     time.Duration `mapstructure:"dedupe_ttl"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// MetricsConfig selects the metrics backend. Addr serves /metrics for the prometheus backend,
// Endpoint receives OTLP exports for the otel backend.
type MetricsConfig struct {
	Backend  string        `mapstructure:"backend"`
	Addr     string        `mapstructure:"addr"`
	Endpoint string        `mapstructure:"endpoint"`
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig enables span export.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		LibraryName:   circulation.DefaultIssuerName,
		HandOffPolicy: circulation.HandOffDropIneligible.String(),
		Scan:          ScanConfig{Schedule: "0 7 * * *", Timeout: time.Minute},
		Journal:       JournalConfig{Driver: JournalMemory, Migrate: true, RetryAttempts: 3},
		Redis:         RedisConfig{Channel: "circulation.notices"},
		Notify:        NotifyConfig{DedupeTTL: 20 * time.Hour, RatePerSecond: 10, Burst: 20},
		Metrics:       MetricsConfig{Backend: MetricsPrometheus, Addr: ":9090", Endpoint: "localhost:4317", Interval: 15 * time.Second},
		Log:           LogConfig{Level: "info", Format: "text"},
		Tracing:       TracingConfig{Exporter: TracingStdout, Endpoint: "localhost:4317"},
	}
}

// Load reads the file at path, if path is not empty, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key so environment variables can override keys absent from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("library_name", d.LibraryName)
	v.SetDefault("handoff_policy", d.HandOffPolicy)
	v.SetDefault("scan.schedule", d.Scan.Schedule)
	v.SetDefault("scan.timeout", d.Scan.Timeout)
	v.SetDefault("journal.driver", d.Journal.Driver)
	v.SetDefault("journal.dsn", d.Journal.DSN)
	v.SetDefault("journal.table", d.Journal.Table)
	v.SetDefault("journal.migrate", d.Journal.Migrate)
	v.SetDefault("journal.retry_attempts", d.Journal.RetryAttempts)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.channel", d.Redis.Channel)
	v.SetDefault("notify.dedupe_ttl", d.Notify.DedupeTTL)
	v.SetDefault("notify.rate_per_second", d.Notify.RatePerSecond)
	v.SetDefault("notify.burst", d.Notify.Burst)
	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.endpoint", d.Metrics.Endpoint)
	v.SetDefault("metrics.interval", d.Metrics.Interval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
}

// Validate checks every setting the daemon interprets.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.LibraryName) == "" {
		errs = append(errs, errors.New("library_name must not be blank"))
	}

	if _, err := c.HandOff(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.PolicyTable(); err != nil {
		errs = append(errs, err)
	}

	if c.Scan.Timeout < 0 {
		errs = append(errs, errors.New("scan.timeout must not be negative"))
	}

	switch c.Journal.Driver {
	case JournalNone, JournalMemory:
	case JournalPGX, JournalSQL, JournalSQLX:
		if c.Journal.DSN == "" {
			errs = append(errs, fmt.Errorf("journal.dsn is required for driver %q", c.Journal.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("journal.driver %q is not one of none, memory, pgx, sql, sqlx", c.Journal.Driver))
	}

	if c.Journal.RetryAttempts <= 0 {
		errs = append(errs, errors.New("journal.retry_attempts must be positive"))
	}

	if c.Journal.Migrate && c.Journal.Table != "" && c.Journal.Table != postgresjournal.DefaultTableName {
		errs = append(errs, fmt.Errorf("journal.migrate only creates table %q", postgresjournal.DefaultTableName))
	}

	if c.Notify.DedupeTTL < 0 || c.Notify.RatePerSecond < 0 {
		errs = append(errs, errors.New("notify.dedupe_ttl and notify.rate_per_second must not be negative"))
	}

	if c.Notify.RatePerSecond > 0 && c.Notify.Burst <= 0 {
		errs = append(errs, errors.New("notify.burst must be positive when throttling"))
	}

	switch c.Metrics.Backend {
	case MetricsPrometheus:
		if c.Metrics.Addr == "" {
			errs = append(errs, errors.New("metrics.addr is required for the prometheus backend"))
		}
	case MetricsOTel:
		if c.Metrics.Endpoint == "" || c.Metrics.Interval <= 0 {
			errs = append(errs, errors.New("metrics.endpoint and a positive metrics.interval are required for the otel backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("metrics.backend %q is not one of prometheus, otel", c.Metrics.Backend))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	if c.Tracing.Enabled && c.Tracing.Exporter != TracingStdout && c.Tracing.Exporter != TracingOTLP {
		errs = append(errs, fmt.Errorf("tracing.exporter %q is not one of stdout, otlp", c.Tracing.Exporter))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}

	return nil
}

// HandOff parses the hand-off policy.
func (c Config) HandOff() (circulation.HandOffPolicy, error) {
	return circulation.ParseHandOffPolicy(c.HandOffPolicy)
}

// PolicyTable applies the configured policies on top of circulation.DefaultPolicies.
// Category names match existing categories case-insensitively; other names add a category.
func (c Config) PolicyTable() (circulation.PolicyTable, error) {
	table := circulation.DefaultPolicies()

	for name, override := range c.Policies {
		if override.LoanDays <= 0 || override.MaxItems <= 0 {
			return nil, fmt.Errorf("policies.%s: loan_days and max_items must be positive", name)
		}

		category, err := table.ParseCategory(name)
		if err != nil {
			category = circulation.Category(capitalize(strings.TrimSpace(name)))
		}

		table[category] = circulation.Policy{
			LoanDays:   override.LoanDays,
			MaxItems:   override.MaxItems,
			Privileged: override.Privileged,
		}
	}

	return table, nil
}

// LogLevel parses the log level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}

	return level, nil
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}

	runes[0] = unicode.ToUpper(runes[0])

	return string(runes)
}
