// Command dataflux ingests one source collection under one data version.
// It is configured entirely through environment variables and exits non-zero
// when the run cannot complete or its records cannot be saved.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/data-flux/internal/config"
	"github.com/Sternrassler/data-flux/pkg/cache"
	"github.com/Sternrassler/data-flux/pkg/client"
	"github.com/Sternrassler/data-flux/pkg/logging"
	"github.com/Sternrassler/data-flux/pkg/metrics"
	"github.com/Sternrassler/data-flux/pkg/pagination"
	"github.com/Sternrassler/data-flux/pkg/pipeline"
	"github.com/Sternrassler/data-flux/pkg/report"
	"github.com/Sternrassler/data-flux/pkg/schema"
	"github.com/Sternrassler/data-flux/pkg/store/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

// reportTTL bounds how long run reports stay in Redis.
const reportTTL = 30 * 24 * time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Getenv)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, getenv func(string) string) int {
	cfg, err := config.Load(getenv)
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		log.Error().Err(err).Msg("Invalid configuration")
		return exitConfig
	}
	logging.Setup(logging.ConfigFor(cfg.DevMode, cfg.LogLevel, cfg.LogFile))
	defer logging.Close()
	logger := logging.NewLogger("dataflux")

	rules, err := loadRules(cfg.RulesFile)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load validation rules")
		return exitConfig
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to Redis")
			return exitFailed
		}
		defer redisClient.Close()
		logger.Info().Msg("Connected to Redis")
	}

	clientCfg := client.DefaultConfig(cfg.APIURL)
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.RateLimit = cfg.RateLimit
	clientCfg.MaxIdleConnsPerHost = cfg.MaxConcurrency
	if cfg.CacheEnabled() {
		clientCfg.Cache = cache.NewManager(redisClient, cfg.CacheTTL)
	}
	source, err := client.New(clientCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create source client")
		return exitConfig
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if redisClient != nil {
		opts = append(opts, pipeline.WithReportStore(report.NewStore(redisClient, reportTTL, logging.NewLogger("report-store"))))
	}
	if cfg.DatabaseURL != "" && !cfg.DevMode {
		sink, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to database")
			return exitFailed
		}
		defer sink.Close()
		if err := sink.EnsureSchema(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to prepare database schema")
			return exitFailed
		}
		opts = append(opts, pipeline.WithSink(sink))
	}

	runner, err := pipeline.NewRunner(cfg.Pipeline(), source, rules, opts...)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create pipeline")
		return exitConfig
	}

	logger.Info().
		Str("collection", cfg.Collection.String()).
		Int64("version_id", cfg.VersionID).
		Int("request_size", cfg.RequestSize).
		Int("max_concurrency", cfg.MaxConcurrency).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting run")

	result, err := runner.Run(ctx)
	if cfg.PushgatewayURL != "" {
		if pushErr := metrics.Push(ctx, cfg.PushgatewayURL, cfg.Collection.String()); pushErr != nil {
			logger.Warn().Err(pushErr).Msg("Failed to push metrics")
		}
	}

	var discErr *pagination.DiscoveryError
	switch {
	case errors.As(err, &discErr):
		logger.Error().Err(err).Msg("Run aborted")
		return exitFailed
	case err != nil:
		event := logger.Error().Err(err)
		if result != nil {
			event = event.Str("run_id", result.RunID).Int("records", len(result.Records))
		}
		event.Msg("Run failed")
		return exitFailed
	}

	logger.Info().
		Str("run_id", result.RunID).
		Int("records", len(result.Records)).
		Ints("failed_pages", result.FailedPages()).
		Bool("saved", result.Saved).
		Int("skipped_rows", len(result.Skipped)).
		Msg("Run complete")
	return exitOK
}

func loadRules(path string) (*schema.RuleSet, error) {
	if path == "" {
		return schema.DefaultRules()
	}
	return schema.LoadRules(path)
}

// connectRedis accepts a redis:// URL or a bare host:port address.
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
