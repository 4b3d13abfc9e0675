/**
 * @description
 * This file contains the multi-row atomic mutations of the ledger: payment
 * recording and correction, cycle creation and administrative updates, payment
 * assignment sweeps, and the profit distribution transaction. Each exported
 * method runs inside a single pgx transaction so that a failure at any point
 * leaves every touched row unchanged.
 *
 * Two disciplines keep the aggregates honest under concurrency:
 *   - cycle deposit totals are always recomputed from the payment rows inside
 *     the same transaction as the membership change, never incremented;
 *   - the distributed flag flip and the balance debit are conditional UPDATEs
 *     whose affected-row count is checked, so a lost race aborts the whole
 *     transaction instead of double-applying.
 *
 * @dependencies
 * - context, fmt: Standard Go libraries.
 * - github.com/jackc/pgx/v5: Transactions and row scanning.
 * - github.com/shopspring/decimal: Monetary arithmetic.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain"
)

const ensureSystemBalanceQuery = `
	INSERT INTO system_balance (id, balance)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING
`

const recomputeCycleTotalQuery = `
	UPDATE investment_cycles
	SET total_deposit = COALESCE(
			(SELECT SUM(amount) FROM payments WHERE cycle_id = $1 AND is_paid = true), 0),
		updated_at = NOW()
	WHERE id = $1
`

// applyBalanceDelta adjusts the singleton pool balance by delta inside tx.
// The WHERE clause enforces non-negativity: a delta that would drive the
// balance below zero affects no rows and the caller's transaction aborts.
func applyBalanceDelta(ctx context.Context, tx pgx.Tx, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	if _, err := tx.Exec(ctx, ensureSystemBalanceQuery); err != nil {
		return fmt.Errorf("ensure system balance row: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE system_balance
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = 1 AND balance + $1 >= 0
	`, delta)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientSystemBalance
	}
	return nil
}

// lockCycleForWrite row-locks a cycle and rejects mutations of distributed
// cycles. Returns the cycle's distributed/invested flags for further guards.
func lockCycleForWrite(ctx context.Context, tx pgx.Tx, cycleID uuid.UUID) (isInvested, distributed bool, err error) {
	err = tx.QueryRow(ctx, `
		SELECT is_invested, distributed
		FROM investment_cycles
		WHERE id = $1
		FOR UPDATE
	`, cycleID).Scan(&isInvested, &distributed)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, false, ErrCycleNotFound
		}
		return false, false, err
	}
	return isInvested, distributed, nil
}

// CreatePaymentAtomic inserts a payment and credits the pool balance by its
// amount in one transaction. When the payment is created directly into a
// cycle, the target cycle is locked, checked for the distributed flag, and
// its deposit total is recomputed from the authoritative aggregate.
func (r *PostgresRepository) CreatePaymentAtomic(ctx context.Context, payment *domain.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if payment.CycleID != nil {
		if _, distributed, err := lockCycleForWrite(ctx, tx, *payment.CycleID); err != nil {
			return err
		} else if distributed {
			return ErrCycleAlreadyDistributed
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payments (id, user_id, cycle_id, amount, fine, is_paid, method, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, payment.ID, payment.UserID, payment.CycleID, payment.Amount, payment.Fine,
		payment.IsPaid, payment.Method, payment.PaymentDate,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, payment.Amount); err != nil {
		return err
	}

	if payment.CycleID != nil {
		if _, err := tx.Exec(ctx, recomputeCycleTotalQuery, *payment.CycleID); err != nil {
			return fmt.Errorf("recompute cycle total: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// UpdatePaymentAtomic persists a corrected payment and applies the summed
// balance delta of the correction in the same transaction. Payments attached
// to a distributed cycle are immutable. A negative delta that would drive the
// pool balance below zero aborts the whole correction.
func (r *PostgresRepository) UpdatePaymentAtomic(ctx context.Context, payment *domain.Payment, balanceDelta decimal.Decimal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if payment.CycleID != nil {
		if _, distributed, err := lockCycleForWrite(ctx, tx, *payment.CycleID); err != nil {
			return err
		} else if distributed {
			return ErrCycleAlreadyDistributed
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET amount = $2, fine = $3, is_paid = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, payment.ID, payment.Amount, payment.Fine, payment.IsPaid).Scan(&payment.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrPaymentNotFound
		}
		return fmt.Errorf("update payment: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, balanceDelta); err != nil {
		return err
	}

	if payment.CycleID != nil {
		if _, err := tx.Exec(ctx, recomputeCycleTotalQuery, *payment.CycleID); err != nil {
			return fmt.Errorf("recompute cycle total: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// DeletePaymentAtomic removes a payment and reverses its balance effect.
// Payments attached to a distributed cycle are immutable and cannot be
// removed. Returns the deleted row for event publishing.
func (r *PostgresRepository) DeletePaymentAtomic(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var payment domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	if err := scanPayment(tx.QueryRow(ctx, query, paymentID), &payment); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if payment.CycleID != nil {
		if _, distributed, err := lockCycleForWrite(ctx, tx, *payment.CycleID); err != nil {
			return nil, err
		} else if distributed {
			return nil, ErrCycleAlreadyDistributed
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, paymentID); err != nil {
		return nil, fmt.Errorf("delete payment: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, payment.Amount.Neg()); err != nil {
		return nil, err
	}

	if payment.CycleID != nil {
		if _, err := tx.Exec(ctx, recomputeCycleTotalQuery, *payment.CycleID); err != nil {
			return nil, fmt.Errorf("recompute cycle total: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &payment, nil
}

// AssignPaymentsToCycleAtomic links eligible payments (paid, unassigned,
// optionally restricted to an id set) to a cycle and recomputes the cycle's
// deposit total under the same transaction. The two-phase update (bulk link,
// then recompute under the same isolation) guarantees the stored total never
// reflects a half-applied batch. Zero eligible rows is a valid outcome.
func (r *PostgresRepository) AssignPaymentsToCycleAtomic(ctx context.Context, cycleID uuid.UUID, paymentIDs []uuid.UUID) (*domain.AssignPaymentsResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin assign payments tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, distributed, err := lockCycleForWrite(ctx, tx, cycleID); err != nil {
		return nil, err
	} else if distributed {
		return nil, ErrCycleAlreadyDistributed
	}

	linkQuery := `
		UPDATE payments
		SET cycle_id = $1, updated_at = NOW()
		WHERE is_paid = true AND cycle_id IS NULL
	`
	args := []interface{}{cycleID}
	if len(paymentIDs) > 0 {
		linkQuery += ` AND id = ANY($2)`
		args = append(args, paymentIDs)
	}
	linkQuery += ` RETURNING amount`

	rows, err := tx.Query(ctx, linkQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("link payments to cycle: %w", err)
	}

	result := &domain.AssignPaymentsResult{TotalAssignedAmount: decimal.Zero}
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			rows.Close()
			return nil, err
		}
		result.AssignedCount++
		result.TotalAssignedAmount = result.TotalAssignedAmount.Add(amount)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if result.AssignedCount == 0 {
		// Nothing was eligible; commit releases the cycle lock with no changes.
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return result, nil
	}

	if _, err := tx.Exec(ctx, recomputeCycleTotalQuery, cycleID); err != nil {
		return nil, fmt.Errorf("recompute cycle total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateCycleAtomic inserts a new open cycle. When sweepUnassigned is set,
// every currently-unassigned paid payment is attached and the deposit total
// derived from the sweep, all inside the creation transaction.
func (r *PostgresRepository) CreateCycleAtomic(ctx context.Context, cycle *domain.InvestmentCycle, sweepUnassigned bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create cycle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO investment_cycles (id, name, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		RETURNING total_deposit, is_invested, distributed, created_at, updated_at
	`, cycle.ID, cycle.Name, cycle.StartDate, cycle.EndDate,
	).Scan(&cycle.TotalDeposit, &cycle.IsInvested, &cycle.Distributed, &cycle.CreatedAt, &cycle.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	if sweepUnassigned {
		if _, err := tx.Exec(ctx, `
			UPDATE payments
			SET cycle_id = $1, updated_at = NOW()
			WHERE is_paid = true AND cycle_id IS NULL
		`, cycle.ID); err != nil {
			return fmt.Errorf("sweep unassigned payments: %w", err)
		}
		if _, err := tx.Exec(ctx, recomputeCycleTotalQuery, cycle.ID); err != nil {
			return fmt.Errorf("recompute cycle total: %w", err)
		}
		if err := tx.QueryRow(ctx, `SELECT total_deposit FROM investment_cycles WHERE id = $1`, cycle.ID).Scan(&cycle.TotalDeposit); err != nil {
			return fmt.Errorf("reload cycle total: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// MarkCycleInvested performs the conditional open -> invested transition.
// The WHERE clause makes the transition race-free: a concurrent caller that
// loses the race affects zero rows and is told the cycle was already moved.
func (r *PostgresRepository) MarkCycleInvested(ctx context.Context, cycleID uuid.UUID) (*domain.InvestmentCycle, error) {
	var cycle domain.InvestmentCycle
	query := `
		UPDATE investment_cycles
		SET is_invested = true, updated_at = NOW()
		WHERE id = $1 AND is_invested = false AND distributed = false
		RETURNING ` + cycleColumns
	err := scanCycle(r.db.QueryRow(ctx, query, cycleID), &cycle)
	if err == nil {
		return &cycle, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	// Zero rows: distinguish a missing cycle from a rejected transition.
	var isInvested, distributed bool
	probeErr := r.db.QueryRow(ctx, `SELECT is_invested, distributed FROM investment_cycles WHERE id = $1`, cycleID).Scan(&isInvested, &distributed)
	if probeErr != nil {
		if probeErr == pgx.ErrNoRows {
			return nil, ErrCycleNotFound
		}
		return nil, probeErr
	}
	if distributed {
		return nil, ErrCycleAlreadyDistributed
	}
	return nil, ErrCycleAlreadyInvested
}

// UpdateCycleAtomic applies an administrative correction to a cycle and moves
// the matching capital between the cycle and the free pool: a deposit
// increase debits the pool, a profit increase credits it. The correction and
// the balance move commit or abort together.
func (r *PostgresRepository) UpdateCycleAtomic(ctx context.Context, cycleID uuid.UUID, patch domain.UpdateCycleRequest) (*domain.InvestmentCycle, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update cycle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var cycle domain.InvestmentCycle
	query := `SELECT ` + cycleColumns + ` FROM investment_cycles WHERE id = $1 FOR UPDATE`
	if err := scanCycle(tx.QueryRow(ctx, query, cycleID), &cycle); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCycleNotFound
		}
		return nil, err
	}
	if cycle.Distributed {
		return nil, ErrCycleAlreadyDistributed
	}

	balanceDelta := decimal.Zero
	if patch.Name != nil {
		cycle.Name = *patch.Name
	}
	if patch.EndDate != nil {
		cycle.EndDate = patch.EndDate
	}
	if patch.TotalDeposit != nil {
		// Capital entering the cycle leaves the free pool, and vice versa.
		balanceDelta = balanceDelta.Sub(patch.TotalDeposit.Sub(cycle.TotalDeposit))
		cycle.TotalDeposit = *patch.TotalDeposit
	}
	if patch.TotalProfit != nil {
		oldProfit := decimal.Zero
		if cycle.TotalProfit != nil {
			oldProfit = *cycle.TotalProfit
		}
		// Realized profit enters the pool ahead of payout.
		balanceDelta = balanceDelta.Add(patch.TotalProfit.Sub(oldProfit))
		profit := *patch.TotalProfit
		cycle.TotalProfit = &profit
	}

	err = tx.QueryRow(ctx, `
		UPDATE investment_cycles
		SET name = $2, end_date = $3, total_deposit = $4, total_profit = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, cycle.ID, cycle.Name, cycle.EndDate, cycle.TotalDeposit, cycle.TotalProfit).Scan(&cycle.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update cycle: %w", err)
	}

	if err := applyBalanceDelta(ctx, tx, balanceDelta); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &cycle, nil
}

// DeleteCycleAtomic hard-deletes a cycle that has no live financial effects.
// Invested or distributed cycles, and cycles with attached payments, are
// refused so that applied balance effects can never be silently orphaned.
func (r *PostgresRepository) DeleteCycleAtomic(ctx context.Context, cycleID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete cycle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	isInvested, distributed, err := lockCycleForWrite(ctx, tx, cycleID)
	if err != nil {
		return err
	}
	if distributed {
		return ErrCycleAlreadyDistributed
	}
	if isInvested {
		return ErrCycleAlreadyInvested
	}

	var attached int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE cycle_id = $1`, cycleID).Scan(&attached); err != nil {
		return err
	}
	if attached > 0 {
		return ErrCycleHasPayments
	}

	if _, err := tx.Exec(ctx, `DELETE FROM investment_cycles WHERE id = $1`, cycleID); err != nil {
		return fmt.Errorf("delete cycle: %w", err)
	}

	return tx.Commit(ctx)
}

// DistributeProfitAtomic executes the one-shot payout transaction: flip the
// distributed flag (conditionally, so concurrent distributions of the same
// cycle cannot both succeed), insert every payout ledger row, and debit the
// pool balance. Any failure rolls back all of it.
func (r *PostgresRepository) DistributeProfitAtomic(ctx context.Context, cycleID uuid.UUID, totalProfit decimal.Decimal, records []domain.ProfitDistribution) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin distribution tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE investment_cycles
		SET distributed = true,
			total_profit = $2,
			end_date = COALESCE(end_date, NOW()),
			updated_at = NOW()
		WHERE id = $1 AND distributed = false
	`, cycleID, totalProfit)
	if err != nil {
		return fmt.Errorf("flip distributed flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if probeErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM investment_cycles WHERE id = $1)`, cycleID).Scan(&exists); probeErr != nil {
			return probeErr
		}
		if !exists {
			return ErrCycleNotFound
		}
		return ErrCycleAlreadyDistributed
	}

	for i := range records {
		err := tx.QueryRow(ctx, `
			INSERT INTO profit_distributions (id, cycle_id, user_id, payment_id, amount)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`, records[i].ID, records[i].CycleID, records[i].UserID, records[i].PaymentID, records[i].Amount,
		).Scan(&records[i].CreatedAt)
		if err != nil {
			return fmt.Errorf("insert profit distribution row: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, ensureSystemBalanceQuery); err != nil {
		return fmt.Errorf("ensure system balance row: %w", err)
	}
	debitTag, err := tx.Exec(ctx, `
		UPDATE system_balance
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = 1 AND balance >= $1
	`, totalProfit)
	if err != nil {
		return fmt.Errorf("debit system balance: %w", err)
	}
	if debitTag.RowsAffected() == 0 {
		return ErrInsufficientSystemBalance
	}

	return tx.Commit(ctx)
}

// ReconcileCycleTotals re-derives the deposit total of every non-distributed
// cycle from its paid payments and rewrites rows that drifted. Returns one
// correction per fixed cycle. Safety net only: the mutating paths already
// recompute under their own transactions.
func (r *PostgresRepository) ReconcileCycleTotals(ctx context.Context) ([]domain.CycleTotalCorrection, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT c.id, c.total_deposit,
			COALESCE(SUM(p.amount) FILTER (WHERE p.is_paid), 0) AS actual_total
		FROM investment_cycles c
		LEFT JOIN payments p ON p.cycle_id = c.id
		WHERE c.distributed = false
		GROUP BY c.id, c.total_deposit
		HAVING c.total_deposit <> COALESCE(SUM(p.amount) FILTER (WHERE p.is_paid), 0)
	`)
	if err != nil {
		return nil, fmt.Errorf("find drifted cycles: %w", err)
	}

	var corrections []domain.CycleTotalCorrection
	for rows.Next() {
		var c domain.CycleTotalCorrection
		if err := rows.Scan(&c.CycleID, &c.OldTotal, &c.NewTotal); err != nil {
			rows.Close()
			return nil, err
		}
		corrections = append(corrections, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range corrections {
		if _, err := tx.Exec(ctx, recomputeCycleTotalQuery, c.CycleID); err != nil {
			return nil, fmt.Errorf("reconcile cycle %s: %w", c.CycleID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return corrections, nil
}
