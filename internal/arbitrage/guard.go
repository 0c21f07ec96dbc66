package arbitrage

import (
	"github.com/shopspring/decimal"
)

// Verdict classifies a freshly observed price against the reference.
type Verdict string

const (
	VerdictImproved         Verdict = "improved"
	VerdictAcceptableDrop   Verdict = "acceptable_drop"
	VerdictUnacceptableDrop Verdict = "unacceptable_drop"
)

// Acceptable reports whether a bet may be placed at the observed price.
func (v Verdict) Acceptable() bool {
	return v != VerdictUnacceptableDrop
}

var hundred = decimal.NewFromInt(100)

// DropPct returns (observed - reference) / reference * 100. Negative values
// are drops. The reference must be positive.
func DropPct(reference, observed decimal.Decimal) decimal.Decimal {
	return observed.Sub(reference).Mul(hundred).Div(reference)
}

// Classify applies the odds-drop guard. A drop exactly at the threshold is
// acceptable; anything strictly beyond it is not. A non-positive reference
// cannot be compared and is treated as an unacceptable drop.
func Classify(reference, observed decimal.Decimal, thresholdPct float64) (Verdict, decimal.Decimal) {
	if !reference.IsPositive() {
		return VerdictUnacceptableDrop, decimal.Zero
	}
	drop := DropPct(reference, observed)
	limit := decimal.NewFromFloat(thresholdPct).Neg()

	switch {
	case !drop.IsNegative():
		return VerdictImproved, drop
	case drop.LessThan(limit):
		return VerdictUnacceptableDrop, drop
	default:
		return VerdictAcceptableDrop, drop
	}
}
