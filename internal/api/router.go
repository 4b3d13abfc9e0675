/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		// Payment endpoints
		r.Post("/payments", h.RecordPaymentHandler)
		r.Get("/payments", h.ListPaymentsHandler)
		r.Get("/payments/user/{userID}", h.ListUserPaymentsHandler)
		r.Patch("/payments/{id}", h.CorrectPaymentHandler)
		r.Delete("/payments/{id}", h.DeletePaymentHandler)

		// Investment cycle endpoints
		r.Post("/cycles", h.CreateCycleHandler)
		r.Get("/cycles", h.ListCyclesHandler)
		r.Get("/cycles/{id}", h.GetCycleHandler)
		r.Patch("/cycles/{id}", h.UpdateCycleHandler)
		r.Delete("/cycles/{id}", h.DeleteCycleHandler)
		r.Post("/cycles/{id}/assign-payments", h.AssignPaymentsHandler)
		r.Post("/cycles/{id}/invest", h.InvestCycleHandler)
		r.Post("/cycles/{id}/distribute", h.DistributeProfitHandler)
		r.Get("/cycles/{id}/distributions", h.ListCycleDistributionsHandler)

		// Distribution history by member
		r.Get("/distributions/user/{userID}", h.ListUserDistributionsHandler)

		// System balance and dashboard endpoints
		r.Get("/balance", h.GetSystemBalanceHandler)
		r.Get("/dashboard/summary", h.GetDashboardSummaryHandler)
		r.Get("/dashboard/users", h.ListUsersOverviewHandler)
	})

	return r
}
