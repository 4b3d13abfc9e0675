/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the read-side queries for users, payments, cycles, profit
 * distributions, the system balance singleton, and the admin dashboard
 * aggregates. The multi-row atomic mutations live in postgres_repository_ledger.go.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poolvest/ledger-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID retrieves a member from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, name, phone, role, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Name, &user.Phone, &user.Role, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CountUsers returns the total number of registered members.
func (r *PostgresRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListUsersOverview returns the per-member dashboard listing: paid totals,
// pending counts, unassigned paid amounts, and last payment dates.
func (r *PostgresRepository) ListUsersOverview(ctx context.Context) ([]domain.UserOverview, error) {
	query := `
		SELECT
			u.id,
			u.name,
			u.phone,
			COALESCE(SUM(p.amount) FILTER (WHERE p.is_paid), 0) AS total_paid,
			COUNT(p.id) FILTER (WHERE NOT p.is_paid) AS pending_count,
			COALESCE(SUM(p.amount) FILTER (WHERE p.is_paid AND p.cycle_id IS NULL), 0) AS unassigned_paid,
			MAX(p.payment_date) FILTER (WHERE p.is_paid) AS last_payment_date,
			u.created_at
		FROM users u
		LEFT JOIN payments p ON p.user_id = u.id
		GROUP BY u.id, u.name, u.phone, u.created_at
		ORDER BY u.created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overviews []domain.UserOverview
	for rows.Next() {
		var o domain.UserOverview
		err := rows.Scan(
			&o.UserID, &o.Name, &o.Phone, &o.TotalPaid, &o.PendingCount,
			&o.UnassignedPaid, &o.LastPaymentDate, &o.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, o)
	}
	return overviews, rows.Err()
}

const paymentColumns = `id, user_id, cycle_id, amount, fine, is_paid, COALESCE(method, '') AS method, payment_date, created_at, updated_at`

func scanPayment(row pgx.Row, p *domain.Payment) error {
	return row.Scan(
		&p.ID, &p.UserID, &p.CycleID, &p.Amount, &p.Fine, &p.IsPaid,
		&p.Method, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt,
	)
}

// FindPaymentByID retrieves a single payment by its ID.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	var payment domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if err := scanPayment(r.db.QueryRow(ctx, query, paymentID), &payment); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// ListPayments retrieves all payments, newest first.
func (r *PostgresRepository) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments ORDER BY payment_date DESC`
	return r.queryPayments(ctx, query)
}

// ListPaymentsByUserID retrieves all payments owned by a member, newest first.
func (r *PostgresRepository) ListPaymentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY payment_date DESC`
	return r.queryPayments(ctx, query, userID)
}

// ListPaidPaymentsByCycleID retrieves the paid payments attached to a cycle.
// These rows are the authoritative source for the cycle's deposit total and
// for profit share computation.
func (r *PostgresRepository) ListPaidPaymentsByCycleID(ctx context.Context, cycleID uuid.UUID) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE cycle_id = $1 AND is_paid = true ORDER BY payment_date ASC`
	return r.queryPayments(ctx, query, cycleID)
}

func (r *PostgresRepository) queryPayments(ctx context.Context, query string, args ...interface{}) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const cycleColumns = `id, name, start_date, end_date, total_deposit, total_profit, is_invested, distributed, created_at, updated_at`

func scanCycle(row pgx.Row, c *domain.InvestmentCycle) error {
	return row.Scan(
		&c.ID, &c.Name, &c.StartDate, &c.EndDate, &c.TotalDeposit, &c.TotalProfit,
		&c.IsInvested, &c.Distributed, &c.CreatedAt, &c.UpdatedAt,
	)
}

// FindCycleByID retrieves a cycle together with its attached payments.
func (r *PostgresRepository) FindCycleByID(ctx context.Context, cycleID uuid.UUID) (*domain.InvestmentCycle, error) {
	var cycle domain.InvestmentCycle
	query := `SELECT ` + cycleColumns + ` FROM investment_cycles WHERE id = $1`
	if err := scanCycle(r.db.QueryRow(ctx, query, cycleID), &cycle); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCycleNotFound
		}
		return nil, err
	}

	payments, err := r.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE cycle_id = $1 ORDER BY payment_date ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("load cycle payments: %w", err)
	}
	cycle.Payments = payments
	return &cycle, nil
}

// ListCycles retrieves all cycles, newest first, each with its payments.
func (r *PostgresRepository) ListCycles(ctx context.Context) ([]domain.InvestmentCycle, error) {
	rows, err := r.db.Query(ctx, `SELECT `+cycleColumns+` FROM investment_cycles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []domain.InvestmentCycle
	for rows.Next() {
		var c domain.InvestmentCycle
		if err := scanCycle(rows, &c); err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cycles {
		payments, err := r.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE cycle_id = $1 ORDER BY payment_date ASC`, cycles[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load cycle payments: %w", err)
		}
		cycles[i].Payments = payments
	}
	return cycles, nil
}

const distributionColumns = `id, cycle_id, user_id, payment_id, amount, created_at`

func (r *PostgresRepository) queryDistributions(ctx context.Context, query string, args ...interface{}) ([]domain.ProfitDistribution, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ProfitDistribution
	for rows.Next() {
		var d domain.ProfitDistribution
		if err := rows.Scan(&d.ID, &d.CycleID, &d.UserID, &d.PaymentID, &d.Amount, &d.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

// ListDistributionsByCycleID retrieves the payout ledger rows for a cycle.
func (r *PostgresRepository) ListDistributionsByCycleID(ctx context.Context, cycleID uuid.UUID) ([]domain.ProfitDistribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM profit_distributions WHERE cycle_id = $1 ORDER BY created_at ASC`
	return r.queryDistributions(ctx, query, cycleID)
}

// ListDistributionsByUserID retrieves all payout ledger rows for a member.
func (r *PostgresRepository) ListDistributionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.ProfitDistribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM profit_distributions WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryDistributions(ctx, query, userID)
}

// GetSystemBalance returns the singleton pool balance, lazily creating the
// zero-balance row on first need.
func (r *PostgresRepository) GetSystemBalance(ctx context.Context) (*domain.SystemBalance, error) {
	if _, err := r.db.Exec(ctx, ensureSystemBalanceQuery); err != nil {
		return nil, fmt.Errorf("ensure system balance row: %w", err)
	}

	var balance domain.SystemBalance
	err := r.db.QueryRow(ctx, `SELECT balance, updated_at FROM system_balance WHERE id = 1`).Scan(&balance.Balance, &balance.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetDashboardSummary aggregates the headline ledger figures in one round trip
// per source table.
func (r *PostgresRepository) GetDashboardSummary(ctx context.Context) (*domain.DashboardSummary, error) {
	var summary domain.DashboardSummary

	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			COALESCE((SELECT SUM(amount) FROM payments WHERE is_paid = true), 0),
			COALESCE((SELECT SUM(amount) FROM payments WHERE is_paid = true AND cycle_id IS NULL), 0),
			COALESCE((SELECT SUM(total_deposit) FROM investment_cycles), 0),
			(SELECT COUNT(*) FROM investment_cycles WHERE distributed = false),
			COALESCE((SELECT balance FROM system_balance WHERE id = 1), 0)
	`
	err := r.db.QueryRow(ctx, query).Scan(
		&summary.TotalUsers,
		&summary.TotalPaidAmount,
		&summary.TotalUnassignedPaid,
		&summary.TotalInCycles,
		&summary.OpenCycles,
		&summary.SystemBalance,
	)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
