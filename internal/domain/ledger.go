/**
 * @description
 * This file defines the core domain models for the ledger-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Monetary values are `decimal.Decimal` mapped to Postgres NUMERIC columns,
 *   which avoids floating-point inaccuracies with financial data.
 * - A nil `CycleID` on a Payment means "unassigned/pooled": the deposit sits in
 *   the shared pool and is eligible for attachment to a future cycle.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User roles. Users are owned by the membership layer; the ledger only reads
// them to validate payment ownership and to build the admin dashboard.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is the simplified view of a member, containing only the data
// needed by the ledger-service.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     *string   `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Payment represents one contribution event by a member. This struct maps
// directly to the `payments` table.
//
// The fine is tracked separately from the principal amount until an admin
// correction clears it; once cleared it is folded back into Amount.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	CycleID     *uuid.UUID      `json:"cycle_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Fine        decimal.Decimal `json:"fine"`
	IsPaid      bool            `json:"is_paid"`
	Method      string          `json:"method,omitempty"` // e.g. 'cash', 'bank_transfer', 'mobile'
	PaymentDate time.Time       `json:"payment_date"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// InvestmentCycle is a bounded pooled-investment window. Its lifecycle is a
// strict state machine: open -> invested -> distributed, with no skipped or
// reversed transitions. A distributed cycle is immutable except for reads.
//
// TotalDeposit is a materialized aggregate over the paid payments linked to
// the cycle. It is always recomputed from the payment rows inside the same
// transaction as any membership change, never incremented in place.
type InvestmentCycle struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	StartDate    time.Time        `json:"start_date"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
	TotalDeposit decimal.Decimal  `json:"total_deposit"`
	TotalProfit  *decimal.Decimal `json:"total_profit,omitempty"`
	IsInvested   bool             `json:"is_invested"`
	Distributed  bool             `json:"distributed"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Payments     []Payment        `json:"payments,omitempty"`
}

// ProfitDistribution is one payout ledger row produced by a profit
// distribution. Rows are insert-only: there is no update or delete path.
//
// Granularity is per contributing payment, not per user. A member with two
// payments in a cycle receives two rows.
type ProfitDistribution struct {
	ID        uuid.UUID       `json:"id"`
	CycleID   uuid.UUID       `json:"cycle_id"`
	UserID    uuid.UUID       `json:"user_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// SystemBalance is the singleton row holding the pool's free cash.
// It never goes negative: any operation that would drive it below zero is
// rejected in full.
type SystemBalance struct {
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RecordPaymentRequest is the DTO for recording a new deposit.
type RecordPaymentRequest struct {
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method,omitempty"`
	CycleID     *uuid.UUID      `json:"cycle_id,omitempty"`
	PaymentDate *time.Time      `json:"payment_date,omitempty"`
	IsPaid      *bool           `json:"is_paid,omitempty"`
}

// CorrectPaymentRequest is the DTO for an administrative payment correction.
// Nil fields are left untouched.
type CorrectPaymentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Fine   *decimal.Decimal `json:"fine,omitempty"`
	IsPaid *bool            `json:"is_paid,omitempty"`
}

// AssignPaymentsRequest optionally restricts an assignment sweep to a set of
// payment ids. Empty means "all eligible unassigned paid payments".
type AssignPaymentsRequest struct {
	PaymentIDs []uuid.UUID `json:"payment_ids,omitempty"`
}

// AssignPaymentsResult reports the outcome of an assignment sweep.
// A zero count is a valid, non-exceptional outcome.
type AssignPaymentsResult struct {
	AssignedCount       int             `json:"assigned_count"`
	TotalAssignedAmount decimal.Decimal `json:"total_assigned_amount"`
}

// CreateCycleRequest is the DTO for opening a new investment cycle.
// SweepUnassigned explicitly opts in to attaching all currently-unassigned
// paid payments at creation time; it is never implicit.
type CreateCycleRequest struct {
	Name            string     `json:"name"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	SweepUnassigned *bool      `json:"sweep_unassigned,omitempty"`
}

// UpdateCycleRequest is the DTO for administrative cycle corrections outside
// the normal flow. Nil fields are left untouched.
type UpdateCycleRequest struct {
	Name         *string          `json:"name,omitempty"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
	TotalDeposit *decimal.Decimal `json:"total_deposit,omitempty"`
	TotalProfit  *decimal.Decimal `json:"total_profit,omitempty"`
}

// DistributeProfitRequest carries the realized profit figure supplied by the
// caller once the external investment has been liquidated.
type DistributeProfitRequest struct {
	TotalProfit decimal.Decimal `json:"total_profit"`
}

// DistributeProfitResult is the outcome of a successful profit distribution.
type DistributeProfitResult struct {
	CycleID       uuid.UUID            `json:"cycle_id"`
	TotalProfit   decimal.Decimal      `json:"total_profit"`
	TotalDeposit  decimal.Decimal      `json:"total_deposit"`
	ProfitRecords []ProfitDistribution `json:"profit_records"`
}

// DashboardSummary aggregates the headline ledger figures for admins.
type DashboardSummary struct {
	TotalUsers          int64           `json:"total_users"`
	TotalPaidAmount     decimal.Decimal `json:"total_paid_amount"`
	TotalUnassignedPaid decimal.Decimal `json:"total_unassigned_paid"`
	TotalInCycles       decimal.Decimal `json:"total_in_cycles"`
	OpenCycles          int64           `json:"open_cycles"`
	SystemBalance       decimal.Decimal `json:"system_balance"`
}

// UserOverview is one row of the per-member dashboard listing.
type UserOverview struct {
	UserID          uuid.UUID       `json:"user_id"`
	Name            string          `json:"name"`
	Phone           *string         `json:"phone,omitempty"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	PendingCount    int64           `json:"pending_count"`
	UnassignedPaid  decimal.Decimal `json:"unassigned_paid"`
	LastPaymentDate *time.Time      `json:"last_payment_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CycleTotalCorrection records one reconciler fix of a drifted cycle total.
type CycleTotalCorrection struct {
	CycleID  uuid.UUID       `json:"cycle_id"`
	OldTotal decimal.Decimal `json:"old_total"`
	NewTotal decimal.Decimal `json:"new_total"`
}
