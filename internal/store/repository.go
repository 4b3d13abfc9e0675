/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the ledger-service. By defining an interface,
 * we decouple the ledger's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - github.com/shopspring/decimal: For monetary values.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain"
)

var (
	ErrUserNotFound              = errors.New("user not found")
	ErrPaymentNotFound           = errors.New("payment not found")
	ErrCycleNotFound             = errors.New("cycle not found")
	ErrCycleAlreadyInvested      = errors.New("cycle already invested")
	ErrCycleAlreadyDistributed   = errors.New("cycle already distributed")
	ErrCycleHasPayments          = errors.New("cycle has attached payments")
	ErrInsufficientSystemBalance = errors.New("insufficient system balance")
)

// Repository defines the set of methods for interacting with the database.
//
// Every method whose name ends in Atomic performs all of its row mutations
// inside a single database transaction: either every effect it describes is
// applied, or none are.
type Repository interface {
	// User methods (users are owned by the membership layer; read-only here)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	CountUsers(ctx context.Context) (int64, error)
	ListUsersOverview(ctx context.Context) ([]domain.UserOverview, error)

	// Payment methods
	CreatePaymentAtomic(ctx context.Context, payment *domain.Payment) error
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	ListPayments(ctx context.Context) ([]domain.Payment, error)
	ListPaymentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	ListPaidPaymentsByCycleID(ctx context.Context, cycleID uuid.UUID) ([]domain.Payment, error)
	UpdatePaymentAtomic(ctx context.Context, payment *domain.Payment, balanceDelta decimal.Decimal) error
	DeletePaymentAtomic(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	AssignPaymentsToCycleAtomic(ctx context.Context, cycleID uuid.UUID, paymentIDs []uuid.UUID) (*domain.AssignPaymentsResult, error)

	// Cycle methods
	CreateCycleAtomic(ctx context.Context, cycle *domain.InvestmentCycle, sweepUnassigned bool) error
	FindCycleByID(ctx context.Context, cycleID uuid.UUID) (*domain.InvestmentCycle, error)
	ListCycles(ctx context.Context) ([]domain.InvestmentCycle, error)
	MarkCycleInvested(ctx context.Context, cycleID uuid.UUID) (*domain.InvestmentCycle, error)
	UpdateCycleAtomic(ctx context.Context, cycleID uuid.UUID, patch domain.UpdateCycleRequest) (*domain.InvestmentCycle, error)
	DeleteCycleAtomic(ctx context.Context, cycleID uuid.UUID) error

	// Distribution methods
	DistributeProfitAtomic(ctx context.Context, cycleID uuid.UUID, totalProfit decimal.Decimal, records []domain.ProfitDistribution) error
	ListDistributionsByCycleID(ctx context.Context, cycleID uuid.UUID) ([]domain.ProfitDistribution, error)
	ListDistributionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.ProfitDistribution, error)

	// System balance and dashboard methods
	GetSystemBalance(ctx context.Context) (*domain.SystemBalance, error)
	GetDashboardSummary(ctx context.Context) (*domain.DashboardSummary, error)

	// Reconciliation safety net
	ReconcileCycleTotals(ctx context.Context) ([]domain.CycleTotalCorrection, error)
}
