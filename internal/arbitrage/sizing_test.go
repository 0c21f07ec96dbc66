package arbitrage

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCompensatingStake(t *testing.T) {
	got := CompensatingStake(d("100"), d("1.95"), d("2.05"))
	assert.Equal(t, "95.12", got.StringFixed(2))

	assert.True(t, CompensatingStake(d("0"), d("1.95"), d("2.05")).IsZero())
	assert.True(t, CompensatingStake(d("100"), d("1.95"), d("0")).IsZero())
}

func TestClampStake(t *testing.T) {
	tests := []struct {
		name                  string
		stake, balance, limit string
		precision             int32
		want                  string
	}{
		{"under balance", "95.129", "500", "0", 2, "95.12"},
		{"clamped to balance", "95.129", "40.555", "0", 2, "40.55"},
		{"clamped to max stake", "95", "500", "50", 0, "50"},
		{"whole units", "95.99", "500", "0", 0, "95"},
		{"negative balance", "10", "-5", "0", 2, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampStake(d(tt.stake), d(tt.balance), d(tt.limit), tt.precision)
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestSizing_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("clamped stake never exceeds balance and never goes negative", prop.ForAll(
		func(stakeCents, balanceCents int, precision int) bool {
			got := ClampStake(decimal.New(int64(stakeCents), -2), decimal.New(int64(balanceCents), -2), decimal.Zero, int32(precision))
			return !got.IsNegative() &&
				got.LessThanOrEqual(decimal.New(int64(balanceCents), -2).Abs()) &&
				got.LessThanOrEqual(decimal.New(int64(stakeCents), -2))
		},
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 2),
	))

	properties.Property("compensating stake equalizes payouts within rounding", prop.ForAll(
		func(stakeCents, oppPriceCents, priceCents int) bool {
			oppStake := decimal.New(int64(stakeCents), -2)
			oppPrice := decimal.New(int64(oppPriceCents), -2)
			price := decimal.New(int64(priceCents), -2)
			s := CompensatingStake(oppStake, oppPrice, price)
			diff := s.Mul(price).Sub(oppStake.Mul(oppPrice)).Abs()
			return diff.LessThan(decimal.New(1, -6))
		},
		gen.IntRange(100, 100_000),
		gen.IntRange(101, 1000),
		gen.IntRange(101, 1000),
	))

	properties.TestingRun(t)
}

func TestMargin(t *testing.T) {
	m := Margin(d("2.05"), d("2.05"))
	assert.True(t, m.LessThan(decimal.NewFromInt(1)))
	assert.True(t, Margin(d("0"), d("2")).IsZero())
}
