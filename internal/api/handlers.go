/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's payment and
 * system-balance endpoints. Handlers are responsible for parsing incoming
 * requests, calling the appropriate methods on the application service, and
 * writing the HTTP response. They act as the bridge between the web layer and
 * the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/poolvest/ledger-service/internal/app"
	"github.com/poolvest/ledger-service/internal/domain"
	"github.com/poolvest/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service

	// sweepUnassignedDefault decides whether creating a cycle sweeps the
	// unassigned paid-payment pool when the request does not say.
	sweepUnassignedDefault bool
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service, sweepUnassignedDefault bool) *LedgerHandlers {
	return &LedgerHandlers{service: service, sweepUnassignedDefault: sweepUnassignedDefault}
}

// RecordPaymentHandler handles requests to record a member contribution.
func (h *LedgerHandlers) RecordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=record_payment outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	payment, err := h.service.RecordPayment(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=record_payment outcome=failed user_id=%s err=%v", req.UserID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=record_payment outcome=recorded payment_id=%s user_id=%s amount=%s fine=%s",
		payment.ID, payment.UserID, payment.Amount, payment.Fine)
	h.writeJSON(w, http.StatusCreated, payment)
}

// ListPaymentsHandler handles requests to list all payments.
func (h *LedgerHandlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_payments outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, payments)
}

// ListUserPaymentsHandler handles requests for one member's payment history.
func (h *LedgerHandlers) ListUserPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUUIDParam(w, r, "userID", "user ID")
	if !ok {
		return
	}

	payments, err := h.service.ListPaymentsByUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("level=error component=api endpoint=list_user_payments outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, payments)
}

// CorrectPaymentHandler handles requests to correct a recorded payment.
// Clearing a fine here is a reversal: the freed amount flows back through the
// pooled balance rather than disappearing.
func (h *LedgerHandlers) CorrectPaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.parseUUIDParam(w, r, "id", "payment ID")
	if !ok {
		return
	}

	var req domain.CorrectPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=correct_payment outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	payment, err := h.service.CorrectPayment(r.Context(), paymentID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=correct_payment outcome=failed payment_id=%s err=%v", paymentID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=correct_payment outcome=corrected payment_id=%s amount=%s fine=%s",
		payment.ID, payment.Amount, payment.Fine)
	h.writeJSON(w, http.StatusOK, payment)
}

// DeletePaymentHandler handles requests to remove an erroneously recorded payment.
func (h *LedgerHandlers) DeletePaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.parseUUIDParam(w, r, "id", "payment ID")
	if !ok {
		return
	}

	if err := h.service.DeletePayment(r.Context(), paymentID); err != nil {
		log.Printf("level=warn component=api endpoint=delete_payment outcome=failed payment_id=%s err=%v", paymentID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=delete_payment outcome=deleted payment_id=%s", paymentID)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Payment deleted successfully"})
}

// GetSystemBalanceHandler handles requests for the pooled system balance.
func (h *LedgerHandlers) GetSystemBalanceHandler(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.GetSystemBalance(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=get_balance outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// GetDashboardSummaryHandler handles requests for the aggregate dashboard view.
func (h *LedgerHandlers) GetDashboardSummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetDashboardSummary(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=dashboard_summary outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ListUsersOverviewHandler handles requests for the per-member dashboard listing.
func (h *LedgerHandlers) ListUsersOverviewHandler(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.ListUsersOverview(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=dashboard_users outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, overview)
}

// ListUserDistributionsHandler handles requests for one member's profit history.
func (h *LedgerHandlers) ListUserDistributionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUUIDParam(w, r, "userID", "user ID")
	if !ok {
		return
	}

	records, err := h.service.ListDistributionsByUser(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_user_distributions outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// parseUUIDParam extracts a UUID path parameter, writing a 400 on failure.
func (h *LedgerHandlers) parseUUIDParam(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s is required", label))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", label))
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service and store sentinel errors to HTTP statuses.
func (h *LedgerHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrPaymentNotFound):
		h.writeError(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, store.ErrCycleNotFound):
		h.writeError(w, http.StatusNotFound, "Investment cycle not found")
	case errors.Is(err, store.ErrCycleAlreadyInvested):
		h.writeError(w, http.StatusConflict, "Investment cycle is already invested")
	case errors.Is(err, store.ErrCycleAlreadyDistributed):
		h.writeError(w, http.StatusConflict, "Investment cycle has already been distributed")
	case errors.Is(err, store.ErrCycleHasPayments):
		h.writeError(w, http.StatusConflict, "Investment cycle still has payments assigned")
	case errors.Is(err, store.ErrInsufficientSystemBalance):
		h.writeError(w, http.StatusBadRequest, "Insufficient system balance")
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidCycleName),
		errors.Is(err, app.ErrNoPaidContributors):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again shortly.")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
