// Package api wires the HTTP routes of the QuantoDá? service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dvloznov/quantoda/internal/api/handlers"
	"github.com/dvloznov/quantoda/internal/api/middleware"
	"github.com/dvloznov/quantoda/internal/api/ws"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Sessions *handlers.SessionsHandler
	Analyses *handlers.AnalysesHandler
	Jobs     *handlers.JobsHandler
	History  *handlers.HistoryHandler
	Payments *handlers.PaymentsHandler
	Hub      *ws.Hub
}

// NewRouter builds the chi router with the middleware chain.
// A nil limiter disables rate limiting.
func NewRouter(h Handlers, limiter *rate.Limiter, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS)
	r.Use(middleware.Session)

	r.Get("/health", handlers.Health)
	r.Get("/ws", h.Hub.ServeWS)

	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, log))
		}

		r.Post("/sessions", h.Sessions.CreateSession)
		r.Get("/sessions/{id}", h.Sessions.GetSession)
		r.Post("/sessions/{id}/login", h.Sessions.Login)
		r.Post("/sessions/{id}/logout", h.Sessions.Logout)

		r.Post("/analyses", h.Analyses.CreateAnalysis)
		r.Get("/jobs", h.Jobs.ListJobs)
		r.Get("/jobs/{id}", h.Jobs.GetJob)

		r.Post("/simulate", h.History.Simulate)
		r.Get("/history", h.History.ListHistory)
		r.Get("/history/trend", h.History.Trend)
		r.Get("/history/compare", h.History.Compare)
		r.Delete("/history", h.History.ClearHistory)

		r.Post("/payments/checkout", h.Payments.Checkout)
		r.Post("/payments/check", h.Payments.CheckPayment)
	})

	return r
}
