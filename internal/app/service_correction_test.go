package app

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain"
)

func TestApplyCorrection(t *testing.T) {
	basePayment := func() domain.Payment {
		return domain.Payment{
			ID:     uuid.New(),
			UserID: uuid.New(),
			Amount: decimal.NewFromInt(90),
			Fine:   decimal.NewFromInt(10),
			IsPaid: true,
		}
	}

	tests := []struct {
		name       string
		payment    domain.Payment
		patch      domain.CorrectPaymentRequest
		wantAmount decimal.Decimal
		wantFine   decimal.Decimal
		wantDelta  decimal.Decimal
		wantIsPaid bool
		wantErr    error
	}{
		{
			name:       "clearing fine folds it into the principal and credits the pool",
			payment:    basePayment(),
			patch:      domain.CorrectPaymentRequest{Fine: decimalPtr(decimal.Zero)},
			wantAmount: decimal.NewFromInt(100),
			wantFine:   decimal.Zero,
			wantDelta:  decimal.NewFromInt(10),
			wantIsPaid: true,
		},
		{
			name:       "clearing an already-zero fine is a no-op",
			payment:    domain.Payment{Amount: decimal.NewFromInt(50), Fine: decimal.Zero, IsPaid: true},
			patch:      domain.CorrectPaymentRequest{Fine: decimalPtr(decimal.Zero)},
			wantAmount: decimal.NewFromInt(50),
			wantFine:   decimal.Zero,
			wantDelta:  decimal.Zero,
			wantIsPaid: true,
		},
		{
			name:       "explicit amount alongside fine clearance wins over the fold",
			payment:    basePayment(),
			patch:      domain.CorrectPaymentRequest{Amount: decimalPtr(decimal.NewFromInt(120)), Fine: decimalPtr(decimal.Zero)},
			wantAmount: decimal.NewFromInt(120),
			wantFine:   decimal.Zero,
			wantDelta:  decimal.NewFromInt(30),
			wantIsPaid: true,
		},
		{
			name:       "amount increase credits the pool by the difference",
			payment:    basePayment(),
			patch:      domain.CorrectPaymentRequest{Amount: decimalPtr(decimal.NewFromInt(150))},
			wantAmount: decimal.NewFromInt(150),
			wantFine:   decimal.NewFromInt(10),
			wantDelta:  decimal.NewFromInt(60),
			wantIsPaid: true,
		},
		{
			name:       "amount decrease debits the pool by the difference",
			payment:    basePayment(),
			patch:      domain.CorrectPaymentRequest{Amount: decimalPtr(decimal.NewFromInt(40))},
			wantAmount: decimal.NewFromInt(40),
			wantFine:   decimal.NewFromInt(10),
			wantDelta:  decimal.NewFromInt(-50),
			wantIsPaid: true,
		},
		{
			name:       "raising the fine has no balance effect",
			payment:    domain.Payment{Amount: decimal.NewFromInt(90), Fine: decimal.Zero, IsPaid: true},
			patch:      domain.CorrectPaymentRequest{Fine: decimalPtr(decimal.NewFromInt(10))},
			wantAmount: decimal.NewFromInt(90),
			wantFine:   decimal.NewFromInt(10),
			wantDelta:  decimal.Zero,
			wantIsPaid: true,
		},
		{
			name:       "toggling is_paid has no balance effect",
			payment:    basePayment(),
			patch:      domain.CorrectPaymentRequest{IsPaid: boolPtr(false)},
			wantAmount: decimal.NewFromInt(90),
			wantFine:   decimal.NewFromInt(10),
			wantDelta:  decimal.Zero,
			wantIsPaid: false,
		},
		{
			name:    "rejects zero amount",
			payment: basePayment(),
			patch:   domain.CorrectPaymentRequest{Amount: decimalPtr(decimal.Zero)},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "rejects negative amount",
			payment: basePayment(),
			patch:   domain.CorrectPaymentRequest{Amount: decimalPtr(decimal.NewFromInt(-5))},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "rejects negative fine",
			payment: basePayment(),
			patch:   domain.CorrectPaymentRequest{Fine: decimalPtr(decimal.NewFromInt(-1))},
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, delta, err := applyCorrection(tt.payment, tt.patch)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Amount.Equal(tt.wantAmount) {
				t.Fatalf("expected amount %s, got %s", tt.wantAmount, got.Amount)
			}
			if !got.Fine.Equal(tt.wantFine) {
				t.Fatalf("expected fine %s, got %s", tt.wantFine, got.Fine)
			}
			if !delta.Equal(tt.wantDelta) {
				t.Fatalf("expected balance delta %s, got %s", tt.wantDelta, delta)
			}
			if got.IsPaid != tt.wantIsPaid {
				t.Fatalf("expected is_paid=%t, got %t", tt.wantIsPaid, got.IsPaid)
			}
		})
	}
}

func TestApplyCorrectionFineRoundTrip(t *testing.T) {
	// A member deposits 100 late: 90 principal + 10 fine. Clearing the fine
	// later must leave the ledger as if the full 100 had been principal.
	payment := domain.Payment{
		Amount: decimal.NewFromInt(90),
		Fine:   decimal.NewFromInt(10),
		IsPaid: true,
	}

	corrected, delta, err := applyCorrection(payment, domain.CorrectPaymentRequest{Fine: decimalPtr(decimal.Zero)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !corrected.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected principal 100 after fold, got %s", corrected.Amount)
	}
	if !corrected.Fine.IsZero() {
		t.Fatalf("expected fine cleared, got %s", corrected.Fine)
	}
	if !delta.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected pool credited by the freed fine, got %s", delta)
	}
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func boolPtr(b bool) *bool {
	return &b
}
