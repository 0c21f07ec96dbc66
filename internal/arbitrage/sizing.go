package arbitrage

import (
	"github.com/shopspring/decimal"
)

// CompensatingStake returns the stake that equalizes both legs' payouts:
// oppStake * oppPrice / price. Zero when any input is non-positive.
func CompensatingStake(oppStake, oppPrice, price decimal.Decimal) decimal.Decimal {
	if !oppStake.IsPositive() || !oppPrice.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	return oppStake.Mul(oppPrice).Div(price)
}

// RoundStake rounds down to the venue's tradeable precision (decimal places).
func RoundStake(stake decimal.Decimal, precision int32) decimal.Decimal {
	if !stake.IsPositive() {
		return decimal.Zero
	}
	return stake.RoundFloor(precision)
}

// ClampStake caps stake at the balance and, when positive, the venue's max
// stake, then rounds down. The result is never negative.
func ClampStake(stake, balance, maxStake decimal.Decimal, precision int32) decimal.Decimal {
	out := decimal.Min(stake, balance)
	if maxStake.IsPositive() {
		out = decimal.Min(out, maxStake)
	}
	return RoundStake(out, precision)
}

// Margin is the sum of implied probabilities of a two-leg pair. Values below
// one lock in a profit.
func Margin(priceA, priceB decimal.Decimal) decimal.Decimal {
	if !priceA.IsPositive() || !priceB.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(priceA).Add(decimal.NewFromInt(1).Div(priceB))
}
