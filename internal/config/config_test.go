package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: localhost
    database: giveaways
    user: bot
  redis:
    host: localhost
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*24*time.Hour, cfg.Giveaway.MaxDuration)
	assert.Equal(t, 50, cfg.Giveaway.MaxWinners)
	assert.Equal(t, "@every 1m", cfg.Scheduler.ReconcileSpec)
	assert.Equal(t, 30*time.Second, cfg.Facts.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Giveaway.FireTimeout)
	assert.Equal(t, "localhost:6379", cfg.Database.Redis.Addr())
}

func TestLoad_ParsesDurations(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  sqlite:
    path: /tmp/giveaways.db
  redis:
    host: cache
    port: 6380
giveaway:
  max_duration: 168h
  entry_rate_limit: 5
  entry_rate_window: 30s
  fire_timeout: 45s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Giveaway.MaxDuration)
	assert.Equal(t, 5, cfg.Giveaway.EntryRateLimit)
	assert.Equal(t, 30*time.Second, cfg.Giveaway.EntryRateWindow)
	assert.Equal(t, 45*time.Second, cfg.Giveaway.FireTimeout)
	assert.Equal(t, "cache:6380", cfg.Database.Redis.Addr())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: localhost
    database: giveaways
    user: bot
  redis:
    host: localhost
`)
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Postgres: PostgresConfig{Host: "localhost", Database: "giveaways", User: "bot"},
				Redis:    RedisConfig{Host: "localhost"},
			},
			Giveaway:  GiveawayConfig{MaxDuration: time.Hour, MaxWinners: 10},
			Scheduler: SchedulerConfig{Enabled: true, ReconcileSpec: "*/5 * * * *", Timezone: "UTC"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing postgres host",
			mutate:  func(c *Config) { c.Database.Postgres.Host = "" },
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Database.Driver = "sqlite" },
			wantErr: "database.sqlite.path is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "database.driver must be postgres or sqlite",
		},
		{
			name:    "non-positive max duration",
			mutate:  func(c *Config) { c.Giveaway.MaxDuration = 0 },
			wantErr: "giveaway.max_duration must be positive",
		},
		{
			name:    "rate limit without window",
			mutate:  func(c *Config) { c.Giveaway.EntryRateLimit = 3 },
			wantErr: "giveaway.entry_rate_window must be positive",
		},
		{
			name:    "negative fire timeout",
			mutate:  func(c *Config) { c.Giveaway.FireTimeout = -time.Second },
			wantErr: "giveaway.fire_timeout must not be negative",
		},
		{
			name:    "bad cron spec",
			mutate:  func(c *Config) { c.Scheduler.ReconcileSpec = "every minute" },
			wantErr: "scheduler.reconcile_spec is invalid",
		},
		{
			name:    "disabled scheduler skips cron check",
			mutate:  func(c *Config) { c.Scheduler = SchedulerConfig{} },
			wantErr: "",
		},
		{
			name:    "mattermost without webhook",
			mutate:  func(c *Config) { c.Mattermost.Enabled = true },
			wantErr: "mattermost.webhook_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
