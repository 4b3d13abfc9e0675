/**
 * @description
 * This file contains the HTTP handlers for investment cycle endpoints: cycle
 * lifecycle management, assigning paid payments into a cycle, marking a cycle
 * invested, and the one-shot profit distribution.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/domain: Request and response models.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/poolvest/ledger-service/internal/domain"
)

// CreateCycleHandler handles requests to open a new investment cycle.
func (h *LedgerHandlers) CreateCycleHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_cycle outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	cycle, err := h.service.CreateCycle(r.Context(), req, h.sweepUnassignedDefault)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_cycle outcome=failed name=%q err=%v", req.Name, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=create_cycle outcome=created cycle_id=%s name=%q total_deposit=%s",
		cycle.ID, cycle.Name, cycle.TotalDeposit)
	h.writeJSON(w, http.StatusCreated, cycle)
}

// ListCyclesHandler handles requests to list all investment cycles.
func (h *LedgerHandlers) ListCyclesHandler(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.service.ListCycles(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_cycles outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, cycles)
}

// GetCycleHandler handles requests for one cycle, including its payments.
func (h *LedgerHandlers) GetCycleHandler(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := h.parseUUIDParam(w, r, "id", "cycle ID")
	if !ok {
		return
	}

	cycle, err := h.service.GetCycle(r.Context(), cycleID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=get_cycle outcome=failed cycle_id=%s err=%v", cycleID, err)
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cycle)
}

// UpdateCycleHandler handles requests to adjust a cycle's metadata or totals.
func (h *LedgerHandlers) UpdateCycleHandler(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := h.parseUUIDParam(w, r, "id", "cycle ID")
	if !ok {
		return
	}

	var req domain.UpdateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=update_cycle outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	cycle, err := h.service.UpdateCycle(r.Context(), cycleID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=update_cycle outcome=failed cycle_id=%s err=%v", cycleID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=update_cycle outcome=updated cycle_id=%s total_deposit=%s",
		cycle.ID, cycle.TotalDeposit)
	h.writeJSON(w, http.StatusOK, cycle)
}

// DeleteCycleHandler handles requests to remove an empty, uninvested cycle.
func (h *LedgerHandlers) DeleteCycleHandler(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := h.parseUUIDParam(w, r, "id", "cycle ID")
	if !ok {
		return
	}

	if err := h.service.DeleteCycle(r.Context(), cycleID); err != nil {
		log.Printf("level=warn component=api endpoint=delete_cycle outcome=failed cycle_id=%s err=%v", cycleID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=delete_cycle outcome=deleted cycle_id=%s", cycleID)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Investment cycle deleted successfully"})
}

// AssignPaymentsHandler handles requests to link paid, unassigned payments
// into a cycle. With no explicit IDs the whole unassigned paid pool is swept.
func (h *LedgerHandlers) AssignPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := h.parseUUIDParam(w, r, "id", "cycle ID")
	if !ok {
		return
	}

	var req domain.AssignPaymentsRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("level=warn component=api endpoint=assign_payments outcome=reject reason=invalid_json err=%v", err)
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	}

	result, err := h.service.AssignPaidPaymentsToCycle(r.Context(), cycleID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=assign_payments outcome=failed cycle_id=%s err=%v", cycleID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=assign_payments outcome=assigned cycle_id=%s count=%d total=%s",
		cycleID, result.AssignedCount, result.TotalAssignedAmount)
	h.writeJSON(w, http.StatusOK, result)
}

// InvestCycleHandler handles requests to mark a cycle's pool as invested.
func (h *LedgerHandlers) InvestCycleHandler(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := h.parseUUIDParam(w, r, "id", "cycle ID")
	if !ok {
		return
	}

	cycle, err := h.service.MarkInvested(r.Context(), cycleID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=invest_cycle outcome=failed cycle_id=%s err=%v", cycleID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=invest_cycle outcome=invested cycle_id=%s total_deposit=%s",
		cycle.ID, cycle.TotalDeposit)
	h.writeJSON(w, http.StatusOK, cycle)
}

// DistributeProfitHandler handles requests to distribute a cycle's profit
// across its paid contributors. This is a one-shot operation per cycle.
func (h *LedgerHandlers) DistributeProfitHandler(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := h.parseUUIDParam(w, r, "id", "cycle ID")
	if !ok {
		return
	}

	var req domain.DistributeProfitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=distribute_profit outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.DistributeProfit(r.Context(), cycleID, req.TotalProfit)
	if err != nil {
		log.Printf("level=warn component=api endpoint=distribute_profit outcome=failed cycle_id=%s err=%v", cycleID, err)
		h.writeServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=distribute_profit outcome=distributed cycle_id=%s total_profit=%s records=%d",
		result.CycleID, result.TotalProfit, len(result.ProfitRecords))
	h.writeJSON(w, http.StatusOK, result)
}

// ListCycleDistributionsHandler handles requests for a cycle's profit records.
func (h *LedgerHandlers) ListCycleDistributionsHandler(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := h.parseUUIDParam(w, r, "id", "cycle ID")
	if !ok {
		return
	}

	records, err := h.service.ListDistributionsByCycle(r.Context(), cycleID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_cycle_distributions outcome=failed cycle_id=%s err=%v", cycleID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}
