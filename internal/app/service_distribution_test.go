package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain"
	"github.com/poolvest/ledger-service/internal/store"
)

type distributionRepoStub struct {
	store.Repository

	cycle    *domain.InvestmentCycle
	cycleErr error
	payments []domain.Payment
	balance  decimal.Decimal

	distributeCalled  bool
	distributedProfit decimal.Decimal
	distributedRows   []domain.ProfitDistribution
	distributeErr     error
}

func (s *distributionRepoStub) FindCycleByID(ctx context.Context, cycleID uuid.UUID) (*domain.InvestmentCycle, error) {
	if s.cycleErr != nil {
		return nil, s.cycleErr
	}
	return s.cycle, nil
}

func (s *distributionRepoStub) ListPaidPaymentsByCycleID(ctx context.Context, cycleID uuid.UUID) ([]domain.Payment, error) {
	return s.payments, nil
}

func (s *distributionRepoStub) GetSystemBalance(ctx context.Context) (*domain.SystemBalance, error) {
	return &domain.SystemBalance{Balance: s.balance, UpdatedAt: time.Now()}, nil
}

func (s *distributionRepoStub) DistributeProfitAtomic(ctx context.Context, cycleID uuid.UUID, totalProfit decimal.Decimal, records []domain.ProfitDistribution) error {
	s.distributeCalled = true
	s.distributedProfit = totalProfit
	s.distributedRows = records
	return s.distributeErr
}

func TestComputeProfitShares(t *testing.T) {
	cycleID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	payments := []domain.Payment{
		{ID: uuid.New(), UserID: alice, Amount: decimal.NewFromInt(100)},
		{ID: uuid.New(), UserID: bob, Amount: decimal.NewFromInt(300)},
	}

	records, totalDeposit := computeProfitShares(cycleID, payments, decimal.NewFromInt(40))

	if !totalDeposit.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected total deposit 400, got %s", totalDeposit)
	}
	if len(records) != 2 {
		t.Fatalf("expected one record per payment, got %d", len(records))
	}
	if !records[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected alice's share 10, got %s", records[0].Amount)
	}
	if !records[1].Amount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected bob's share 30, got %s", records[1].Amount)
	}
	for i, rec := range records {
		if rec.CycleID != cycleID {
			t.Fatalf("record %d has wrong cycle id", i)
		}
		if rec.PaymentID != payments[i].ID {
			t.Fatalf("record %d not keyed to its payment", i)
		}
	}
}

func TestComputeProfitSharesPerPaymentGranularity(t *testing.T) {
	// A member with two payments in the cycle gets two payout rows, each
	// proportional to its own payment.
	cycleID := uuid.New()
	member := uuid.New()

	payments := []domain.Payment{
		{ID: uuid.New(), UserID: member, Amount: decimal.NewFromInt(100)},
		{ID: uuid.New(), UserID: member, Amount: decimal.NewFromInt(100)},
	}

	records, _ := computeProfitShares(cycleID, payments, decimal.NewFromInt(50))

	if len(records) != 2 {
		t.Fatalf("expected two payout rows for two payments, got %d", len(records))
	}
	for i, rec := range records {
		if !rec.Amount.Equal(decimal.NewFromInt(25)) {
			t.Fatalf("record %d: expected share 25, got %s", i, rec.Amount)
		}
	}
}

func TestDistributeProfitRejectsNonPositiveProfit(t *testing.T) {
	svc := &Service{repo: &distributionRepoStub{}}

	_, err := svc.DistributeProfit(context.Background(), uuid.New(), decimal.Zero)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestDistributeProfitCycleNotFound(t *testing.T) {
	repo := &distributionRepoStub{cycleErr: store.ErrCycleNotFound}
	svc := &Service{repo: repo}

	_, err := svc.DistributeProfit(context.Background(), uuid.New(), decimal.NewFromInt(40))
	if !errors.Is(err, store.ErrCycleNotFound) {
		t.Fatalf("expected ErrCycleNotFound, got %v", err)
	}
	if repo.distributeCalled {
		t.Fatal("did not expect distribution attempt for missing cycle")
	}
}

func TestDistributeProfitRejectsAlreadyDistributedCycle(t *testing.T) {
	repo := &distributionRepoStub{
		cycle: &domain.InvestmentCycle{ID: uuid.New(), Distributed: true},
	}
	svc := &Service{repo: repo}

	_, err := svc.DistributeProfit(context.Background(), repo.cycle.ID, decimal.NewFromInt(40))
	if !errors.Is(err, store.ErrCycleAlreadyDistributed) {
		t.Fatalf("expected ErrCycleAlreadyDistributed, got %v", err)
	}
	if repo.distributeCalled {
		t.Fatal("did not expect distribution attempt for distributed cycle")
	}
}

func TestDistributeProfitRejectsCycleWithoutPaidContributors(t *testing.T) {
	repo := &distributionRepoStub{
		cycle:   &domain.InvestmentCycle{ID: uuid.New(), IsInvested: true},
		balance: decimal.NewFromInt(1000),
	}
	svc := &Service{repo: repo}

	_, err := svc.DistributeProfit(context.Background(), repo.cycle.ID, decimal.NewFromInt(40))
	if !errors.Is(err, ErrNoPaidContributors) {
		t.Fatalf("expected ErrNoPaidContributors, got %v", err)
	}
}

func TestDistributeProfitRejectsInsufficientBalance(t *testing.T) {
	cycleID := uuid.New()
	repo := &distributionRepoStub{
		cycle: &domain.InvestmentCycle{ID: cycleID, IsInvested: true},
		payments: []domain.Payment{
			{ID: uuid.New(), UserID: uuid.New(), Amount: decimal.NewFromInt(100)},
		},
		balance: decimal.NewFromInt(30),
	}
	svc := &Service{repo: repo}

	_, err := svc.DistributeProfit(context.Background(), cycleID, decimal.NewFromInt(40))
	if !errors.Is(err, store.ErrInsufficientSystemBalance) {
		t.Fatalf("expected ErrInsufficientSystemBalance, got %v", err)
	}
	if repo.distributeCalled {
		t.Fatal("did not expect distribution attempt without covering balance")
	}
}

func TestDistributeProfitSuccess(t *testing.T) {
	cycleID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	repo := &distributionRepoStub{
		cycle: &domain.InvestmentCycle{ID: cycleID, IsInvested: true},
		payments: []domain.Payment{
			{ID: uuid.New(), UserID: alice, Amount: decimal.NewFromInt(100)},
			{ID: uuid.New(), UserID: bob, Amount: decimal.NewFromInt(300)},
		},
		balance: decimal.NewFromInt(1000),
	}
	svc := &Service{repo: repo}

	result, err := svc.DistributeProfit(context.Background(), cycleID, decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.distributeCalled {
		t.Fatal("expected atomic distribution call")
	}
	if !repo.distributedProfit.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected distributed profit 40, got %s", repo.distributedProfit)
	}
	if len(result.ProfitRecords) != 2 {
		t.Fatalf("expected 2 payout rows, got %d", len(result.ProfitRecords))
	}
	if !result.TotalDeposit.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected total deposit 400, got %s", result.TotalDeposit)
	}
	if result.CycleID != cycleID {
		t.Fatalf("expected result keyed to cycle %s, got %s", cycleID, result.CycleID)
	}
}

type denyingRateLimiter struct{}

func (denyingRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return limit + 1, 30, nil
}

type failingRateLimiter struct{}

func (failingRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return 0, 0, errors.New("redis unavailable")
}

func TestDistributeProfitRateLimited(t *testing.T) {
	repo := &distributionRepoStub{}
	svc := &Service{repo: repo}
	svc.SetRateLimiter(denyingRateLimiter{}, 0, 5)

	_, err := svc.DistributeProfit(context.Background(), uuid.New(), decimal.NewFromInt(40))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if repo.distributeCalled {
		t.Fatal("did not expect distribution attempt when rate limited")
	}
}

func TestDistributeProfitFailsOpenOnLimiterOutage(t *testing.T) {
	cycleID := uuid.New()
	repo := &distributionRepoStub{
		cycle: &domain.InvestmentCycle{ID: cycleID, IsInvested: true},
		payments: []domain.Payment{
			{ID: uuid.New(), UserID: uuid.New(), Amount: decimal.NewFromInt(100)},
		},
		balance: decimal.NewFromInt(1000),
	}
	svc := &Service{repo: repo}
	svc.SetRateLimiter(failingRateLimiter{}, 0, 5)

	if _, err := svc.DistributeProfit(context.Background(), cycleID, decimal.NewFromInt(40)); err != nil {
		t.Fatalf("expected limiter outage to fail open, got %v", err)
	}
	if !repo.distributeCalled {
		t.Fatal("expected distribution to proceed despite limiter outage")
	}
}
