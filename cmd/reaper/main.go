package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/pkg/config"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/metrics"
	"github.com/inkwell-labs/inkwell-backend/pkg/redis"
)

const sweepInterval = time.Minute

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "reaper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "reaper"

	logg = logger.New(logger.Options{
		ServiceName: "reaper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	stateStore, err := jobstate.NewRedisStore(redisClient)
	requireResource(ctx, logg, "job state store", err)

	tracker, err := jobstate.NewTracker(stateStore, cfg.JobState.TTL, logg)
	requireResource(ctx, logg, "job tracker", err)

	reaper, err := jobstate.NewReaper(jobstate.ReaperParams{
		Lister:    redisClient,
		Tracker:   tracker,
		Threshold: cfg.Generation.StaleJobThreshold,
		Metrics:   metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
	})
	requireResource(ctx, logg, "stale job reaper", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "stale job reaper ready")

	if err := reaper.Run(runCtx, sweepInterval); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "stale job reaper failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "stale job reaper shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
