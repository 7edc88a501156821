package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/api/rest"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/cache"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/config"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/database"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/telemetry"
	"github.com/clearsight/scenario-audit-backend/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting scenario audit api",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceName = cfg.Telemetry.ServiceName
	telCfg.ServiceVersion = cfg.Version
	telCfg.Environment = cfg.Environment
	telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	telCfg.Enabled = cfg.Telemetry.MetricsEnabled

	provider, err := telemetry.Setup(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	registry, err := metrics.NewRegistry(cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	pool, err := database.NewPool(ctx, &cfg.Database, registry, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	go pollPoolMetrics(ctx, pool)

	store := database.NewReportingRepository(pool, logger)

	checkers := []rest.HealthChecker{
		rest.CheckFunc{CheckName: "database", Fn: pool.Healthy},
	}

	// Redis is optional. Without it every response is computed from the
	// reporting schema on each request.
	var timelineCache *cache.TimelineCache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(&cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisCache.Close()

		timelineCache = cache.NewTimelineCache(redisCache, registry, logger,
			cfg.Redis.TimelineTTL, cfg.Redis.InsightTTL)
		checkers = append(checkers, rest.CheckFunc{
			CheckName: "redis",
			Fn: func(ctx context.Context) error {
				_, err := redisCache.Exists(ctx, "readiness")
				return err
			},
		})
	} else {
		logger.Info("redis not configured, running without response cache")
	}

	handler := rest.NewHandler(rest.HandlerOptions{
		Store:       store,
		Cache:       timelineCache,
		Logger:      logger,
		Registry:    registry,
		Version:     cfg.Version,
		Checkers:    checkers,
		Correlation: cfg.Correlation,
		Debug:       cfg.Environment == "development",
	})

	recordBuildInfo(cfg.Version)

	server := rest.NewServer(cfg, handler, logger)
	return server.Start(ctx)
}
