package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinePolicy is the configurable late-payment charge: collections after the
// cutoff day of the month carry a fixed fine, tracked separately from the
// principal until an admin clears it.
type FinePolicy struct {
	CutoffDay int
	Amount    decimal.Decimal
}

// Assess returns the fine owed for a collection on the given date.
func (p FinePolicy) Assess(paidAt time.Time) decimal.Decimal {
	if p.Amount.IsPositive() && paidAt.Day() > p.CutoffDay {
		return p.Amount
	}
	return decimal.Zero
}
