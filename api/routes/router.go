package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tryon-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/tryon-backend/api/controllers/webhooks"
	"github.com/angelmondragon/tryon-backend/api/middleware"
	"github.com/angelmondragon/tryon-backend/pkg/config"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
)

type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Tenants     middleware.TenantLoader
	Limiter     middleware.QuotaChecker
	Generations controllers.GenerationSubmitter
	Credits     controllers.CreditsReader
	Paddle      webhookcontrollers.PaddleEventProcessor
	Gatherer    prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    params.DB,
			"redis": params.Redis,
		}))
	})

	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paddle", webhookcontrollers.PaddleWebhook(params.Paddle, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.QuotaGate(middleware.QuotaGateParams{
			JWT:            cfg.JWT,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Tenants:        params.Tenants,
			Limiter:        params.Limiter,
			Logger:         logg,
		}))

		r.Post("/generations", controllers.CreateGeneration(params.Generations, logg))
		r.Get("/credits", controllers.CreditsBalance(params.Credits, logg))
		r.Get("/credits/transactions", controllers.CreditsTransactions(params.Credits, logg))
	})

	return r
}
