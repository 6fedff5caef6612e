package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkwell-labs/inkwell-backend/internal/analytics"
	"github.com/inkwell-labs/inkwell-backend/internal/artifacts"
	"github.com/inkwell-labs/inkwell-backend/internal/generation"
	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/internal/provider"
	"github.com/inkwell-labs/inkwell-backend/internal/stream"
	"github.com/inkwell-labs/inkwell-backend/internal/wallet"
	"github.com/inkwell-labs/inkwell-backend/pkg/config"
	"github.com/inkwell-labs/inkwell-backend/pkg/db"
	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/metrics"
	"github.com/inkwell-labs/inkwell-backend/pkg/migrate"
	"github.com/inkwell-labs/inkwell-backend/pkg/pubsub"
	"github.com/inkwell-labs/inkwell-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		requireResource(ctx, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub", err)
		}
	}()

	subscription := pubsubClient.GenerationSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "generation subscription", errors.New("subscription not configured"))
	}

	stateStore, err := jobstate.NewRedisStore(redisClient)
	requireResource(ctx, logg, "job state store", err)

	tracker, err := jobstate.NewTracker(stateStore, cfg.JobState.TTL, logg)
	requireResource(ctx, logg, "job tracker", err)

	walletService, err := wallet.NewService(wallet.ServiceParams{
		Tx:      dbClient,
		Repo:    wallet.NewRepository(dbClient.DB()),
		Logger:  logg,
		Metrics: metrics.NewBillingMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "wallet service", err)

	artifactStore, err := artifacts.NewGormStore(dbClient.DB())
	requireResource(ctx, logg, "artifact store", err)

	clients, err := buildProviderClients(cfg)
	requireResource(ctx, logg, "provider clients", err)

	genMetrics := metrics.NewGenerationMetrics(prometheus.DefaultRegisterer)
	tracker.WithMetrics(genMetrics)
	orchestrator, err := stream.NewOrchestrator(tracker, genMetrics, logg)
	requireResource(ctx, logg, "stream orchestrator", err)

	emitter, err := analytics.NewEmitter(pubsubClient.AnalyticsPublisher(), logg)
	requireResource(ctx, logg, "usage emitter", err)

	task, err := generation.NewTask(generation.TaskParams{
		Tracker:      tracker,
		Orchestrator: orchestrator,
		Artifacts:    artifactStore,
		Wallet:       walletService,
		Clients:      clients,
		Analytics:    emitter,
		Metrics:      genMetrics,
		Logger:       logg,
	})
	requireResource(ctx, logg, "generation task", err)

	consumer, err := generation.NewConsumer(subscription, task, logg)
	requireResource(ctx, logg, "generation consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "generation worker ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "generation worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "generation worker shutting down gracefully")
}

// buildProviderClients wires one streaming client per configured vendor. At
// least one key must be present or every job would dead-letter immediately.
func buildProviderClients(cfg *config.Config) (map[string]provider.Client, error) {
	clients := map[string]provider.Client{}

	if cfg.Providers.OpenAIAPIKey != "" {
		client, err := provider.NewOpenAIClient(cfg.Providers.OpenAIAPIKey,
			provider.WithOpenAIBaseURL(cfg.Providers.OpenAIBaseURL),
			provider.WithOpenAIStreamTimeout(cfg.Generation.StreamTimeout))
		if err != nil {
			return nil, err
		}
		clients[enums.ProviderOpenAI.String()] = client
	}

	if cfg.Providers.AnthropicAPIKey != "" {
		client, err := provider.NewAnthropicClient(cfg.Providers.AnthropicAPIKey,
			provider.WithAnthropicBaseURL(cfg.Providers.AnthropicBaseURL),
			provider.WithAnthropicStreamTimeout(cfg.Generation.StreamTimeout))
		if err != nil {
			return nil, err
		}
		clients[enums.ProviderAnthropic.String()] = client
	}

	if len(clients) == 0 {
		return nil, errors.New("no provider API keys configured")
	}
	return clients, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
