// Command giveawayd runs the giveaway engine behind its REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	giveawayapi "github.com/aimd54/giveaway-engine/internal/api/giveaway"
	"github.com/aimd54/giveaway-engine/internal/cache"
	"github.com/aimd54/giveaway-engine/internal/config"
	"github.com/aimd54/giveaway-engine/internal/mattermost"
	"github.com/aimd54/giveaway-engine/internal/ratelimit"
	"github.com/aimd54/giveaway-engine/internal/repository"
	"github.com/aimd54/giveaway-engine/internal/service/giveaway"
	"github.com/aimd54/giveaway-engine/internal/service/leaderboard"
	"github.com/aimd54/giveaway-engine/internal/service/scheduler"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "giveawayd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return err
	}
	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("database", cfg.Database.Driver).
		Msg("Starting giveaway engine")

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Database.Redis.Addr(),
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
		PoolSize: cfg.Database.Redis.PoolSize,
	})
	defer redisClient.Close()

	// The fact cache and the Redis limiter degrade when Redis is down, so a
	// failed ping only warns.
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Database.Redis.Addr()).Msg("Redis is not reachable")
	}

	giveaways := repository.NewGiveawayRepository(db)
	entries := repository.NewEntryRepository(db)
	members := repository.NewMemberRepository(db)

	var facts giveaway.FactProvider = members
	if cfg.Facts.CacheTTL > 0 {
		facts = cache.NewFactCache(redisClient, members, cfg.Facts.CacheTTL, log.Component("facts"))
	}

	limiter := newLimiter(ctx, cfg, redisClient)

	svc := giveaway.NewService(
		giveaways,
		entries,
		giveaway.Config{
			MaxDuration:  cfg.Giveaway.MaxDuration,
			MaxWinners:   cfg.Giveaway.MaxWinners,
			RetryBackoff: cfg.Giveaway.RetryBackoff,
			FireTimeout:  cfg.Giveaway.FireTimeout,
		},
		log.Component("engine"),
		giveaway.WithFactProvider(facts),
		giveaway.WithNotifier(mattermost.NewClient(&cfg.Mattermost, log.Component("mattermost"))),
		giveaway.WithLimiter(limiter),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	sweeper := scheduler.NewService(&cfg.Scheduler, svc, log.Component("scheduler"))
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	checks := map[string]giveawayapi.HealthCheck{
		"database": func(context.Context) error { return db.Health() },
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	stats := leaderboard.NewService(repository.NewStatsRepository(db), log.Component("leaderboard"))
	handler := giveawayapi.NewHandler(svc, stats, checks, log.Component("api"))

	metricsPath := ""
	if cfg.Metrics.Prometheus.Enabled {
		metricsPath = cfg.Metrics.Prometheus.Path
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           giveawayapi.NewRouter(handler, metricsPath, log.Component("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Giveaway engine stopped")
	return nil
}

// newLimiter picks the entry rate limiter. SQLite deployments run a single
// node, so their counters stay in process.
func newLimiter(ctx context.Context, cfg *config.Config, client *redis.Client) ratelimit.Limiter {
	limit, window := cfg.Giveaway.EntryRateLimit, cfg.Giveaway.EntryRateWindow
	if limit <= 0 {
		return ratelimit.Noop{}
	}
	if cfg.Database.Driver != "sqlite" {
		return ratelimit.NewRedisLimiter(client, limit, window)
	}

	local := ratelimit.NewLocalLimiter(limit, window)
	go func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				local.Prune()
			}
		}
	}()
	return local
}
