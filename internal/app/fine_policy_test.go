package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFinePolicyAssess(t *testing.T) {
	policy := FinePolicy{CutoffDay: 12, Amount: decimal.NewFromInt(10)}

	tests := []struct {
		name   string
		policy FinePolicy
		paidAt time.Time
		want   decimal.Decimal
	}{
		{
			name:   "on the cutoff day carries no fine",
			policy: policy,
			paidAt: time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC),
			want:   decimal.Zero,
		},
		{
			name:   "before the cutoff day carries no fine",
			policy: policy,
			paidAt: time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC),
			want:   decimal.Zero,
		},
		{
			name:   "after the cutoff day carries the fine",
			policy: policy,
			paidAt: time.Date(2025, time.March, 13, 0, 0, 0, 0, time.UTC),
			want:   decimal.NewFromInt(10),
		},
		{
			name:   "end of month carries the fine",
			policy: policy,
			paidAt: time.Date(2025, time.March, 31, 23, 59, 0, 0, time.UTC),
			want:   decimal.NewFromInt(10),
		},
		{
			name:   "zero fine amount disables the policy",
			policy: FinePolicy{CutoffDay: 12, Amount: decimal.Zero},
			paidAt: time.Date(2025, time.March, 25, 0, 0, 0, 0, time.UTC),
			want:   decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Assess(tt.paidAt)
			if !got.Equal(tt.want) {
				t.Fatalf("expected fine %s, got %s", tt.want, got)
			}
		})
	}
}
