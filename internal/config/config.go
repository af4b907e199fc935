// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Giveaway   GiveawayConfig   `mapstructure:"giveaway"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Facts      FactsConfig      `mapstructure:"facts"`
	Mattermost MattermostConfig `mapstructure:"mattermost"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Environment     string `mapstructure:"environment"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

// DatabaseConfig contains database connection settings for PostgreSQL, SQLite and Redis.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres (default) or sqlite
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// SQLiteConfig contains the single-node SQLite settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns the host:port address of the Redis server.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GiveawayConfig contains engine policy settings.
type GiveawayConfig struct {
	MaxDuration     time.Duration `mapstructure:"max_duration"`
	MaxWinners      int           `mapstructure:"max_winners"`
	EntryRateLimit  int           `mapstructure:"entry_rate_limit"`  // entry attempts per participant per window, 0 disables
	EntryRateWindow time.Duration `mapstructure:"entry_rate_window"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"` // delay before the single read retry
	FireTimeout     time.Duration `mapstructure:"fire_timeout"`  // budget for one scheduled end
}

// SchedulerConfig contains the reconcile sweep settings.
type SchedulerConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ReconcileSpec string `mapstructure:"reconcile_spec"` // Cron expression for the reconcile sweep
	Timezone      string `mapstructure:"timezone"`
}

// FactsConfig contains participant fact cache settings.
type FactsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 0 disables the cache
}

// MattermostConfig contains Mattermost webhook notification settings.
type MattermostConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// envBindings maps config keys to their environment variables.
var envBindings = map[string]string{
	"server.port":                         "SERVER_PORT",
	"server.environment":                  "SERVER_ENVIRONMENT",
	"server.shutdown_timeout":             "SERVER_SHUTDOWN_TIMEOUT",
	"database.driver":                     "DATABASE_DRIVER",
	"database.sqlite.path":                "SQLITE_PATH",
	"database.postgres.host":              "POSTGRES_HOST",
	"database.postgres.port":              "POSTGRES_PORT",
	"database.postgres.database":          "POSTGRES_DB",
	"database.postgres.user":              "POSTGRES_USER",
	"database.postgres.password":          "POSTGRES_PASSWORD",
	"database.postgres.ssl_mode":          "POSTGRES_SSL_MODE",
	"database.postgres.max_open_conns":    "POSTGRES_MAX_OPEN_CONNS",
	"database.postgres.max_idle_conns":    "POSTGRES_MAX_IDLE_CONNS",
	"database.postgres.conn_max_lifetime": "POSTGRES_CONN_MAX_LIFETIME",
	"database.redis.host":                 "REDIS_HOST",
	"database.redis.port":                 "REDIS_PORT",
	"database.redis.password":             "REDIS_PASSWORD",
	"database.redis.db":                   "REDIS_DB",
	"database.redis.pool_size":            "REDIS_POOL_SIZE",
	"giveaway.max_duration":               "GIVEAWAY_MAX_DURATION",
	"giveaway.max_winners":                "GIVEAWAY_MAX_WINNERS",
	"giveaway.entry_rate_limit":           "GIVEAWAY_ENTRY_RATE_LIMIT",
	"giveaway.entry_rate_window":          "GIVEAWAY_ENTRY_RATE_WINDOW",
	"giveaway.retry_backoff":              "GIVEAWAY_RETRY_BACKOFF",
	"giveaway.fire_timeout":               "GIVEAWAY_FIRE_TIMEOUT",
	"scheduler.enabled":                   "SCHEDULER_ENABLED",
	"scheduler.reconcile_spec":            "SCHEDULER_RECONCILE_SPEC",
	"scheduler.timezone":                  "SCHEDULER_TIMEZONE",
	"facts.cache_ttl":                     "FACTS_CACHE_TTL",
	"mattermost.webhook_url":              "MATTERMOST_WEBHOOK_URL",
	"mattermost.channel":                  "MATTERMOST_CHANNEL",
	"mattermost.enabled":                  "MATTERMOST_ENABLED",
	"logging.level":                       "LOG_LEVEL",
	"logging.format":                      "LOG_FORMAT",
	"logging.output":                      "LOG_OUTPUT",
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/giveaway-engine/")
	}

	setDefaults(v)

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.shutdown_timeout", 15)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("giveaway.max_duration", 30*24*time.Hour)
	v.SetDefault("giveaway.max_winners", 50)
	v.SetDefault("giveaway.entry_rate_window", time.Minute)
	v.SetDefault("giveaway.retry_backoff", 200*time.Millisecond)
	v.SetDefault("giveaway.fire_timeout", 30*time.Second)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.reconcile_spec", "@every 1m")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("facts.cache_ttl", 30*time.Second)
	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Giveaway.MaxDuration <= 0 {
		return fmt.Errorf("giveaway.max_duration must be positive")
	}
	if c.Giveaway.MaxWinners < 1 {
		return fmt.Errorf("giveaway.max_winners must be at least 1")
	}
	if c.Giveaway.EntryRateLimit < 0 {
		return fmt.Errorf("giveaway.entry_rate_limit must not be negative")
	}
	if c.Giveaway.EntryRateLimit > 0 && c.Giveaway.EntryRateWindow <= 0 {
		return fmt.Errorf("giveaway.entry_rate_window must be positive when rate limiting is enabled")
	}
	if c.Giveaway.FireTimeout < 0 {
		return fmt.Errorf("giveaway.fire_timeout must not be negative")
	}
	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.ReconcileSpec); err != nil {
			return fmt.Errorf("scheduler.reconcile_spec is invalid: %w", err)
		}
		if _, err := c.Scheduler.GetLocation(); err != nil {
			return fmt.Errorf("scheduler.timezone is invalid: %w", err)
		}
	}
	if c.Mattermost.Enabled && c.Mattermost.WebhookURL == "" {
		return fmt.Errorf("mattermost.webhook_url is required when mattermost is enabled")
	}

	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
