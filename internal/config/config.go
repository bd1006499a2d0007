// Package config loads service configuration from defaults, an optional YAML
// file, CASHFLOW_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CASHFLOW_SERVER_PORT.
const EnvPrefix = "CASHFLOW"

// Storage drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverBigQuery = "bigquery"
)

// AI providers.
const (
	ProviderHTTP   = "http"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	AI      AIConfig
	Jobs    JobsConfig
	Export  ExportConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type StorageConfig struct {
	Driver   string
	DSN      string
	BigQuery BigQueryConfig
}

type BigQueryConfig struct {
	Project string
	Dataset string
}

type AIConfig struct {
	Provider        string
	BaseURL         string
	Model           string
	APIKey          string
	InsightsTimeout time.Duration
	ChatTimeout     time.Duration
	Breaker         BreakerConfig
}

// BreakerConfig tunes the circuit breaker guarding each AI operation.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

type JobsConfig struct {
	Workers    int
	Buffer     int
	MaxRetries int
}

type ExportConfig struct {
	Bucket string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every key with its default value. Keys must be known
// to viper for environment overrides to apply.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "cashflow.db")
	v.SetDefault("storage.bigquery.project", "")
	v.SetDefault("storage.bigquery.dataset", "cashflow")

	v.SetDefault("ai.provider", ProviderNone)
	v.SetDefault("ai.base_url", "http://localhost:8000")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.insights_timeout", 20*time.Second)
	v.SetDefault("ai.chat_timeout", 15*time.Second)
	v.SetDefault("ai.breaker.max_requests", 1)
	v.SetDefault("ai.breaker.interval", 60*time.Second)
	v.SetDefault("ai.breaker.timeout", 30*time.Second)
	v.SetDefault("ai.breaker.consecutive_failures", 5)

	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.buffer", 100)
	v.SetDefault("jobs.max_retries", 3)

	v.SetDefault("export.bucket", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration into a Config. cfgFile may be empty, in which case
// ./config.yaml and $HOME/.config/cashflow/config.yaml are tried.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cashflow"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Load: reading config: %w", err)
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds a Config from the current viper state without validating it.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Storage: StorageConfig{
			Driver: v.GetString("storage.driver"),
			DSN:    v.GetString("storage.dsn"),
			BigQuery: BigQueryConfig{
				Project: v.GetString("storage.bigquery.project"),
				Dataset: v.GetString("storage.bigquery.dataset"),
			},
		},
		AI: AIConfig{
			Provider:        v.GetString("ai.provider"),
			BaseURL:         v.GetString("ai.base_url"),
			Model:           v.GetString("ai.model"),
			APIKey:          v.GetString("ai.api_key"),
			InsightsTimeout: v.GetDuration("ai.insights_timeout"),
			ChatTimeout:     v.GetDuration("ai.chat_timeout"),
			Breaker: BreakerConfig{
				MaxRequests:         v.GetUint32("ai.breaker.max_requests"),
				Interval:            v.GetDuration("ai.breaker.interval"),
				Timeout:             v.GetDuration("ai.breaker.timeout"),
				ConsecutiveFailures: v.GetUint32("ai.breaker.consecutive_failures"),
			},
		},
		Jobs: JobsConfig{
			Workers:    v.GetInt("jobs.workers"),
			Buffer:     v.GetInt("jobs.buffer"),
			MaxRetries: v.GetInt("jobs.max_retries"),
		},
		Export: ExportConfig{
			Bucket: v.GetString("export.bucket"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	case DriverBigQuery:
		if c.Storage.BigQuery.Project == "" {
			return errors.New("storage.bigquery.project is required for driver \"bigquery\"")
		}
		if c.Storage.BigQuery.Dataset == "" {
			return errors.New("storage.bigquery.dataset is required for driver \"bigquery\"")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.AI.Provider {
	case ProviderHTTP:
		if c.AI.BaseURL == "" {
			return errors.New("ai.base_url is required for provider \"http\"")
		}
	case ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.AI.InsightsTimeout <= 0 || c.AI.ChatTimeout <= 0 {
		return errors.New("ai timeouts must be positive")
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.Buffer < 0 || c.Jobs.MaxRetries < 0 {
		return errors.New("jobs.buffer and jobs.max_retries must not be negative")
	}
	return nil
}
