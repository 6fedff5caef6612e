package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkwell-labs/inkwell-backend/api/routes"
	"github.com/inkwell-labs/inkwell-backend/internal/artifacts"
	"github.com/inkwell-labs/inkwell-backend/internal/generation"
	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/internal/payments"
	"github.com/inkwell-labs/inkwell-backend/internal/users"
	"github.com/inkwell-labs/inkwell-backend/internal/wallet"
	"github.com/inkwell-labs/inkwell-backend/pkg/config"
	"github.com/inkwell-labs/inkwell-backend/pkg/db"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/metrics"
	"github.com/inkwell-labs/inkwell-backend/pkg/migrate"
	"github.com/inkwell-labs/inkwell-backend/pkg/pubsub"
	"github.com/inkwell-labs/inkwell-backend/pkg/redis"
	"github.com/inkwell-labs/inkwell-backend/pkg/square"
)

const (
	webhookIdempotencyTTL   = 24 * time.Hour
	webhookIdempotencyScope = "square-webhook"
	shutdownGrace           = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	stateStore, err := jobstate.NewRedisStore(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create job state store", err)
		os.Exit(1)
	}
	tracker, err := jobstate.NewTracker(stateStore, cfg.JobState.TTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create job tracker", err)
		os.Exit(1)
	}

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)
	walletRepo := wallet.NewRepository(dbClient.DB())
	walletService, err := wallet.NewService(wallet.ServiceParams{
		Tx:      dbClient,
		Repo:    walletRepo,
		Logger:  logg,
		Metrics: billingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	userService, err := users.NewService(users.ServiceParams{
		Repo:     users.NewRepository(dbClient.DB()),
		JWT:      cfg.JWT,
		Password: cfg.Password,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create user service", err)
		os.Exit(1)
	}

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create square client", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:   walletRepo,
		Wallet: walletService,
		Square: squareClient,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	webhookGuard, err := payments.NewIdempotencyGuard(redisClient, webhookIdempotencyTTL, webhookIdempotencyScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	enqueuer, err := generation.NewEnqueuer(pubsubClient.GenerationPublisher(), tracker, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create job enqueuer", err)
		os.Exit(1)
	}

	artifactStore, err := artifacts.NewGormStore(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create artifact store", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			Redis:         redisClient,
			Users:         userService,
			Wallet:        walletService,
			Enqueuer:      enqueuer,
			Tracker:       tracker,
			Artifacts:     artifactStore,
			Payments:      paymentService,
			PaymentsGuard: webhookGuard,
			Square:        squareClient,
		}),
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "api server shutting down gracefully")
}
