package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/payouts/internal/infrastructure/config"
	"github.com/cassiomorais/payouts/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/payouts/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Database         Pinger
	Redis            Pinger
	Payouts          *PayoutController
	IdempotencyStore customMW.IdempotencyStore
	IdempotencyTTL   time.Duration
	Metrics          *observability.Metrics
	Gatherer         prometheus.Gatherer
	ServiceName      string
	Server           config.ServerConfig
	Auth             config.AuthConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.Database, deps.Redis)
	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Must cover a full batch including provider retries.
		if deps.Server.WriteTimeout > 0 {
			r.Use(chimw.Timeout(deps.Server.WriteTimeout))
		}
		if deps.Auth.JWTSecret != "" {
			r.Use(customMW.RequireAuth(deps.Auth.JWTSecret))
		}
		if deps.Server.RateLimit > 0 {
			r.Use(customMW.RateLimit(deps.Server.RateLimit))
		}

		payoutH := deps.Payouts
		idempotent := func(h http.HandlerFunc) http.Handler { return h }
		if deps.IdempotencyStore != nil {
			mw := customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL)
			idempotent = func(h http.HandlerFunc) http.Handler { return mw(h) }
		}

		r.Method(http.MethodPost, "/orders/{id}/payouts", idempotent(payoutH.CreateForOrder))
		r.Method(http.MethodPost, "/payouts/batch", idempotent(payoutH.RunBatch))
		r.Method(http.MethodPost, "/payouts/{id}/run", idempotent(payoutH.Run))
		r.Get("/payouts/{id}", payoutH.Get)
		r.Get("/payouts/{id}/ledger", payoutH.Ledger)
	})

	return r
}
