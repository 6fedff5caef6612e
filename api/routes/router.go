package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkwell-labs/inkwell-backend/api/controllers"
	webhookcontrollers "github.com/inkwell-labs/inkwell-backend/api/controllers/webhooks"
	"github.com/inkwell-labs/inkwell-backend/api/middleware"
	"github.com/inkwell-labs/inkwell-backend/internal/artifacts"
	"github.com/inkwell-labs/inkwell-backend/internal/generation"
	"github.com/inkwell-labs/inkwell-backend/internal/jobstate"
	"github.com/inkwell-labs/inkwell-backend/internal/payments"
	"github.com/inkwell-labs/inkwell-backend/internal/users"
	"github.com/inkwell-labs/inkwell-backend/internal/wallet"
	"github.com/inkwell-labs/inkwell-backend/pkg/config"
	"github.com/inkwell-labs/inkwell-backend/pkg/logger"
	"github.com/inkwell-labs/inkwell-backend/pkg/redis"
	"github.com/inkwell-labs/inkwell-backend/pkg/square"
)

// Deps bundles the wired services the router exposes over HTTP.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	Redis          *redis.Client
	Users          *users.Service
	Wallet         wallet.Service
	Enqueuer       *generation.Enqueuer
	Tracker        *jobstate.Tracker
	Artifacts      artifacts.Store
	Payments       *payments.Service
	PaymentsGuard  *payments.IdempotencyGuard
	Square         *square.Client
	MetricsHandler http.Handler
}

// NewRouter assembles the public HTTP surface.
func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Redis, logg))
	})

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.Payments, deps.Square, deps.PaymentsGuard, logg))
	})

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(deps.Users, logg))
		r.Post("/login", controllers.AuthLogin(deps.Users, logg))
	})

	r.Get("/v1/pricing", controllers.Pricing())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		// Enqueue is the only route that costs money downstream, so it
		// carries a per-user rate limit on top of auth.
		r.With(middleware.RateLimit(deps.Redis, "generate", cfg.Generation.EnqueueRateLimit, cfg.Generation.EnqueueRateWindow, logg)).
			Post("/v1/blogs/{id}/generate", controllers.BlogGenerate(deps.Enqueuer, deps.Wallet, logg))
		r.Get("/v1/jobs/{id}", controllers.JobStatus(deps.Tracker, deps.Artifacts, logg))
		r.Get("/v1/jobs/{id}/stream", controllers.JobStream(deps.Tracker, deps.Artifacts, logg))

		r.Route("/v1/account", func(r chi.Router) {
			r.Get("/", controllers.AccountBalance(deps.Wallet, logg))
			r.Get("/transactions", controllers.AccountTransactions(deps.Wallet, logg))
			r.Get("/usage", controllers.AccountUsage(deps.Wallet, logg))
		})
	})

	return r
}
