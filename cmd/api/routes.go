package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"finsight/internal/shared/config"
	"finsight/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	if cfg.Telemetry.Enabled {
		r.Use(middleware.Telemetry)
		r.Use(middleware.Tracing)
	}
	if cfg.TLS.Enabled {
		r.Use(middleware.HSTS)
	}

	r.Get("/health", deps.HealthHandler.HandleHealth)

	r.Post("/link-token", deps.LinkHandler.HandleLinkToken)
	r.Post("/exchange", deps.LinkHandler.HandleExchange)
	r.Post("/sync", deps.SyncHandler.HandleSync)
	r.Get("/status", deps.SyncHandler.HandleStatus)
	r.Get("/accounts", deps.AccountHandler.HandleListAccounts)
	r.Get("/transactions", deps.TransactionHandler.HandleListTransactions)
	r.Get("/context", deps.ContextHandler.HandleContext)

	if cfg.Aggregator.IsSandbox() {
		r.Post("/sandbox/public-token", deps.LinkHandler.HandleSandboxPublicToken)
		log.Info().Msg("Sandbox routes enabled")
	}

	return r
}
