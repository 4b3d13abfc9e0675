/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct orchestrates every ledger operation: recording and correcting deposits,
 * the cycle lifecycle state machine, and profit distribution, coordinating between
 * the database repository and the message broker.
 *
 * Key features:
 * - Precondition checks run here in contract order; the final enforcement of
 *   each invariant lives in the repository's atomic transactions, so a lost
 *   race still fails cleanly instead of half-applying.
 * - Publishes ledger events to RabbitMQ for asynchronous consumers. Publishing
 *   is best-effort and never fails a committed operation.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/shopspring/decimal: Monetary arithmetic.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain"
	"github.com/poolvest/ledger-service/internal/store"
	"github.com/poolvest/ledger-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidCycleName   = errors.New("cycle name is required")
	ErrNoPaidContributors = errors.New("no paid contributors in cycle")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// RateLimiter is the distributed rate limiting contract used to throttle the
// money-mutating operations. A nil limiter disables throttling.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the pooled-investment ledger.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	finePolicy    FinePolicy

	rateLimiter               RateLimiter
	paymentRateLimitPerMin    int
	distributeRateLimitPerMin int
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, finePolicy FinePolicy) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
		finePolicy:    finePolicy,
	}
}

// SetRateLimiter installs a distributed rate limiter for mutating operations.
func (s *Service) SetRateLimiter(limiter RateLimiter, paymentPerMinute, distributePerMinute int) {
	s.rateLimiter = limiter
	s.paymentRateLimitPerMin = paymentPerMinute
	s.distributeRateLimitPerMin = distributePerMinute
}

// consumeRateLimit enforces a per-subject per-minute budget. A limiter outage
// fails open: ledger correctness never depends on Redis availability.
func (s *Service) consumeRateLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.rateLimiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		log.Printf("level=warn component=ledger_service msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > limit {
		log.Printf("level=warn component=ledger_service msg=\"rate limit exceeded\" scope=%s subject=%s retry_after_s=%d", scope, subject, retryAfter)
		return ErrRateLimited
	}
	return nil
}

// publishEvent emits a ledger event. Publishing is fire-and-forget: the
// ledger mutation has already committed by the time this runs.
func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.LedgerEventsExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=ledger_service msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

// RecordPayment records a deposit: the payment row is inserted, the late-fine
// policy applied, and the pool balance credited, atomically. An optional
// cycle id attaches the deposit to a cycle at creation time.
func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (*domain.Payment, error) {
	if err := s.consumeRateLimit(ctx, "payment", req.UserID.String(), s.paymentRateLimitPerMin); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if _, err := s.repo.FindUserByID(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("validate payment owner: %w", err)
	}

	paidAt := time.Now().UTC()
	if req.PaymentDate != nil {
		paidAt = req.PaymentDate.UTC()
	}
	isPaid := true
	if req.IsPaid != nil {
		isPaid = *req.IsPaid
	}

	payment := &domain.Payment{
		ID:          uuid.New(),
		UserID:      req.UserID,
		CycleID:     req.CycleID,
		Amount:      req.Amount,
		Fine:        s.finePolicy.Assess(paidAt),
		IsPaid:      isPaid,
		Method:      req.Method,
		PaymentDate: paidAt,
	}
	if err := s.repo.CreatePaymentAtomic(ctx, payment); err != nil {
		return nil, err
	}

	log.Printf("level=info component=ledger_service op=record_payment payment_id=%s user_id=%s amount=%s fine=%s",
		payment.ID, payment.UserID, payment.Amount, payment.Fine)
	s.publishEvent(ctx, "payment.recorded", rabbitmq.PaymentEvent{
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		Amount:    payment.Amount,
		Fine:      payment.Fine,
		Timestamp: time.Now().UTC(),
	})
	return payment, nil
}

// CorrectPayment applies an administrative correction. Clearing a fine to
// zero without touching the amount folds the fine back into the principal and
// credits the pool by the freed fine; an amount change moves the pool by the
// delta. All balance effects of one call land in a single update.
func (s *Service) CorrectPayment(ctx context.Context, paymentID uuid.UUID, patch domain.CorrectPaymentRequest) (*domain.Payment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	corrected, balanceDelta, err := applyCorrection(*payment, patch)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdatePaymentAtomic(ctx, &corrected, balanceDelta); err != nil {
		return nil, err
	}

	log.Printf("level=info component=ledger_service op=correct_payment payment_id=%s balance_delta=%s", corrected.ID, balanceDelta)
	s.publishEvent(ctx, "payment.corrected", rabbitmq.PaymentEvent{
		PaymentID: corrected.ID,
		UserID:    corrected.UserID,
		Amount:    corrected.Amount,
		Fine:      corrected.Fine,
		Timestamp: time.Now().UTC(),
	})
	return &corrected, nil
}

// applyCorrection computes the corrected payment and the net pool balance
// delta for one correction call. The pool tracks principal: a fine cleared to
// zero (with the amount left unspecified) reclassifies the fine as principal,
// so the fold credits the pool by exactly the freed fine and nothing else.
func applyCorrection(payment domain.Payment, patch domain.CorrectPaymentRequest) (domain.Payment, decimal.Decimal, error) {
	balanceDelta := decimal.Zero

	fineCleared := patch.Fine != nil && patch.Fine.IsZero() && payment.Fine.IsPositive()
	switch {
	case fineCleared && patch.Amount == nil:
		payment.Amount = payment.Amount.Add(payment.Fine)
		balanceDelta = balanceDelta.Add(payment.Fine)
		payment.Fine = decimal.Zero
	case patch.Fine != nil:
		if patch.Fine.IsNegative() {
			return payment, decimal.Zero, ErrInvalidAmount
		}
		payment.Fine = *patch.Fine
	}

	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return payment, decimal.Zero, ErrInvalidAmount
		}
		balanceDelta = balanceDelta.Add(patch.Amount.Sub(payment.Amount))
		payment.Amount = *patch.Amount
	}

	if patch.IsPaid != nil {
		payment.IsPaid = *patch.IsPaid
	}

	return payment, balanceDelta, nil
}

// DeletePayment removes a payment with explicit, atomic reversal of its
// balance effect. Payments in a distributed cycle are refused.
func (s *Service) DeletePayment(ctx context.Context, paymentID uuid.UUID) error {
	payment, err := s.repo.DeletePaymentAtomic(ctx, paymentID)
	if err != nil {
		return err
	}

	log.Printf("level=info component=ledger_service op=delete_payment payment_id=%s amount=%s", payment.ID, payment.Amount)
	s.publishEvent(ctx, "payment.deleted", rabbitmq.PaymentEvent{
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		Amount:    payment.Amount,
		Fine:      payment.Fine,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// AssignPaidPaymentsToCycle attaches eligible pooled deposits to a cycle and
// recomputes the cycle total. A zero-count result is a valid outcome.
func (s *Service) AssignPaidPaymentsToCycle(ctx context.Context, cycleID uuid.UUID, req domain.AssignPaymentsRequest) (*domain.AssignPaymentsResult, error) {
	result, err := s.repo.AssignPaymentsToCycleAtomic(ctx, cycleID, req.PaymentIDs)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=ledger_service op=assign_payments cycle_id=%s assigned=%d total=%s",
		cycleID, result.AssignedCount, result.TotalAssignedAmount)
	return result, nil
}

// ListPayments returns all payments, newest first.
func (s *Service) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx)
}

// ListPaymentsByUser returns the payments owned by one member.
func (s *Service) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	return s.repo.ListPaymentsByUserID(ctx, userID)
}

// CreateCycle opens a new investment cycle. The sweep of currently-unassigned
// paid payments into the new cycle only happens when explicitly requested.
func (s *Service) CreateCycle(ctx context.Context, req domain.CreateCycleRequest, sweepDefault bool) (*domain.InvestmentCycle, error) {
	if req.Name == "" {
		return nil, ErrInvalidCycleName
	}

	startDate := time.Now().UTC()
	if req.StartDate != nil {
		startDate = req.StartDate.UTC()
	}
	sweep := sweepDefault
	if req.SweepUnassigned != nil {
		sweep = *req.SweepUnassigned
	}

	cycle := &domain.InvestmentCycle{
		ID:        uuid.New(),
		Name:      req.Name,
		StartDate: startDate,
		EndDate:   req.EndDate,
	}
	if err := s.repo.CreateCycleAtomic(ctx, cycle, sweep); err != nil {
		return nil, err
	}

	log.Printf("level=info component=ledger_service op=create_cycle cycle_id=%s name=%q sweep=%t total_deposit=%s",
		cycle.ID, cycle.Name, sweep, cycle.TotalDeposit)
	s.publishEvent(ctx, "cycle.created", rabbitmq.CycleEvent{
		CycleID:      cycle.ID,
		Name:         cycle.Name,
		TotalDeposit: cycle.TotalDeposit,
		Timestamp:    time.Now().UTC(),
	})
	return cycle, nil
}

// GetCycle returns one cycle with its attached payments.
func (s *Service) GetCycle(ctx context.Context, cycleID uuid.UUID) (*domain.InvestmentCycle, error) {
	return s.repo.FindCycleByID(ctx, cycleID)
}

// ListCycles returns all cycles, newest first.
func (s *Service) ListCycles(ctx context.Context) ([]domain.InvestmentCycle, error) {
	return s.repo.ListCycles(ctx)
}

// MarkInvested performs the open -> invested transition. Re-invocation on an
// already-invested cycle is rejected, not treated as a no-op.
func (s *Service) MarkInvested(ctx context.Context, cycleID uuid.UUID) (*domain.InvestmentCycle, error) {
	cycle, err := s.repo.MarkCycleInvested(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=ledger_service op=mark_invested cycle_id=%s", cycle.ID)
	s.publishEvent(ctx, "cycle.invested", rabbitmq.CycleEvent{
		CycleID:      cycle.ID,
		Name:         cycle.Name,
		TotalDeposit: cycle.TotalDeposit,
		Timestamp:    time.Now().UTC(),
	})
	return cycle, nil
}

// UpdateCycle applies an administrative correction to a non-distributed
// cycle, moving matched capital between the cycle and the free pool.
func (s *Service) UpdateCycle(ctx context.Context, cycleID uuid.UUID, patch domain.UpdateCycleRequest) (*domain.InvestmentCycle, error) {
	if patch.TotalDeposit != nil && patch.TotalDeposit.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if patch.TotalProfit != nil && patch.TotalProfit.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return s.repo.UpdateCycleAtomic(ctx, cycleID, patch)
}

// DeleteCycle hard-deletes a cycle, refusing any cycle with live financial
// effects (invested, distributed, or holding payments).
func (s *Service) DeleteCycle(ctx context.Context, cycleID uuid.UUID) error {
	return s.repo.DeleteCycleAtomic(ctx, cycleID)
}

// DistributeProfit fans a cycle's realized profit out to its contributors in
// proportion to their paid-in share, exactly once. Preconditions are checked
// in contract order; the repository transaction re-enforces the distributed
// flag and the balance floor so concurrent callers cannot both succeed.
func (s *Service) DistributeProfit(ctx context.Context, cycleID uuid.UUID, totalProfit decimal.Decimal) (*domain.DistributeProfitResult, error) {
	if err := s.consumeRateLimit(ctx, "distribution", cycleID.String(), s.distributeRateLimitPerMin); err != nil {
		return nil, err
	}
	if !totalProfit.IsPositive() {
		return nil, ErrInvalidAmount
	}

	cycle, err := s.repo.FindCycleByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Distributed {
		return nil, store.ErrCycleAlreadyDistributed
	}

	payments, err := s.repo.ListPaidPaymentsByCycleID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, ErrNoPaidContributors
	}

	balance, err := s.repo.GetSystemBalance(ctx)
	if err != nil {
		return nil, err
	}
	if balance.Balance.LessThan(totalProfit) {
		return nil, store.ErrInsufficientSystemBalance
	}

	records, totalDeposit := computeProfitShares(cycleID, payments, totalProfit)

	if err := s.repo.DistributeProfitAtomic(ctx, cycleID, totalProfit, records); err != nil {
		return nil, err
	}

	log.Printf("level=info component=ledger_service op=distribute_profit cycle_id=%s total_profit=%s contributors=%d",
		cycleID, totalProfit, len(records))
	s.publishEvent(ctx, "cycle.profit.distributed", rabbitmq.DistributionEvent{
		CycleID:     cycleID,
		TotalProfit: totalProfit,
		RecordCount: len(records),
		Timestamp:   time.Now().UTC(),
	})

	return &domain.DistributeProfitResult{
		CycleID:       cycleID,
		TotalProfit:   totalProfit,
		TotalDeposit:  totalDeposit,
		ProfitRecords: records,
	}, nil
}

// computeProfitShares produces one payout row per contributing payment:
// share = (payment.amount / totalDeposit) * totalProfit. Multiplication runs
// before division so exact decimal divisions stay exact. No residual-cent
// reconciliation is performed.
func computeProfitShares(cycleID uuid.UUID, payments []domain.Payment, totalProfit decimal.Decimal) ([]domain.ProfitDistribution, decimal.Decimal) {
	totalDeposit := decimal.Zero
	for _, p := range payments {
		totalDeposit = totalDeposit.Add(p.Amount)
	}

	records := make([]domain.ProfitDistribution, 0, len(payments))
	for _, p := range payments {
		records = append(records, domain.ProfitDistribution{
			ID:        uuid.New(),
			CycleID:   cycleID,
			UserID:    p.UserID,
			PaymentID: p.ID,
			Amount:    p.Amount.Mul(totalProfit).Div(totalDeposit),
		})
	}
	return records, totalDeposit
}

// GetSystemBalance returns the pool's current free cash figure.
func (s *Service) GetSystemBalance(ctx context.Context) (*domain.SystemBalance, error) {
	return s.repo.GetSystemBalance(ctx)
}

// ListDistributionsByCycle returns the payout ledger rows for a cycle.
func (s *Service) ListDistributionsByCycle(ctx context.Context, cycleID uuid.UUID) ([]domain.ProfitDistribution, error) {
	return s.repo.ListDistributionsByCycleID(ctx, cycleID)
}

// ListDistributionsByUser returns all payout ledger rows for a member.
func (s *Service) ListDistributionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.ProfitDistribution, error) {
	return s.repo.ListDistributionsByUserID(ctx, userID)
}

// GetDashboardSummary returns the headline ledger figures for admins.
func (s *Service) GetDashboardSummary(ctx context.Context) (*domain.DashboardSummary, error) {
	return s.repo.GetDashboardSummary(ctx)
}

// ListUsersOverview returns the per-member dashboard listing.
func (s *Service) ListUsersOverview(ctx context.Context) ([]domain.UserOverview, error) {
	return s.repo.ListUsersOverview(ctx)
}
