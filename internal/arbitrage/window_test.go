package arbitrage

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// quarter maps an integer to a quarter line, e.g. 10 -> 2.5.
func quarter(n int) decimal.Decimal {
	return decimal.New(int64(n)*25, -2)
}

func TestTotalWindowSymmetry_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Over(x) admits y iff y >= x", prop.ForAll(
		func(x, y int) bool {
			w, err := WindowFor(domain.NewTotal(domain.SideOver, quarter(x)))
			if err != nil || w.Side != domain.SideUnder {
				return false
			}
			return w.Admits(quarter(y)) == (y >= x)
		},
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
	))

	properties.Property("Under(x) admits y iff y <= x", prop.ForAll(
		func(x, y int) bool {
			w, err := WindowFor(domain.NewTotal(domain.SideUnder, quarter(x)))
			if err != nil || w.Side != domain.SideOver {
				return false
			}
			return w.Admits(quarter(y)) == (y <= x)
		},
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestHandicapWindowMirror_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Handicap1(x) and Handicap2(-x) admit the same lines", prop.ForAll(
		func(x, y int) bool {
			h1, err := WindowFor(domain.NewHandicap(domain.SideHome, quarter(x)))
			if err != nil {
				return false
			}
			h2, err := WindowFor(domain.NewHandicap(domain.SideAway, quarter(-x)))
			if err != nil {
				return false
			}
			return h1.Equivalent(h2) && h1.Admits(quarter(y)) == h2.Admits(quarter(y))
		},
		gen.IntRange(-20, 20),
		gen.IntRange(-30, 30),
	))

	properties.TestingRun(t)
}

func TestHandicapWindowRules(t *testing.T) {
	tests := []struct {
		name  string
		m     domain.Market
		side  domain.Side
		op    Comparator
		bound string
	}{
		{"h1 negative", domain.NewHandicap(domain.SideHome, decimal.RequireFromString("-0.5")), domain.SideAway, AtMost, "0.5"},
		{"h1 zero", domain.NewHandicap(domain.SideHome, decimal.Zero), domain.SideAway, AtLeast, "0"},
		{"h1 positive", domain.NewHandicap(domain.SideHome, decimal.RequireFromString("1.25")), domain.SideAway, AtLeast, "-1.25"},
		{"h2 positive", domain.NewHandicap(domain.SideAway, decimal.RequireFromString("0.5")), domain.SideHome, AtMost, "0.5"},
		{"h2 negative", domain.NewHandicap(domain.SideAway, decimal.RequireFromString("-1")), domain.SideHome, AtLeast, "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := WindowFor(tt.m)
			require.NoError(t, err)
			assert.Equal(t, tt.side, w.Side)
			assert.Equal(t, tt.op, w.Op)
			assert.True(t, w.Bound.Equal(decimal.RequireFromString(tt.bound)), "bound %s", w.Bound)
		})
	}
}

func TestWindowUnsupportedFamilies(t *testing.T) {
	for _, m := range []domain.Market{
		{Family: domain.FamilyMoneyline, Side: domain.SideHome},
		{Family: domain.FamilyOther, Label: "Correct Score 1-0"},
		{},
	} {
		_, err := WindowFor(m)
		assert.ErrorIs(t, err, domain.ErrUnsupportedMarket, m.Family.String())
	}

	_, err := WindowFor(domain.Market{Family: domain.FamilyTotal, Side: domain.SideHome})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMarket)
}

func TestWindowMatchesSideAndPeriod(t *testing.T) {
	winning, err := domain.ParseMarket("1st Half: Total Over(1.5)")
	require.NoError(t, err)
	w, err := WindowFor(winning)
	require.NoError(t, err)

	under, _ := domain.ParseMarket("1st Half: Total Under(2)")
	fullGame, _ := domain.ParseMarket("Total Under(2)")
	over, _ := domain.ParseMarket("1st Half: Total Over(2)")

	assert.True(t, w.Matches(under))
	assert.False(t, w.Matches(fullGame))
	assert.False(t, w.Matches(over))
	assert.Equal(t, "under >= 1.5", w.String())
}

func TestRegistryFamilies(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []domain.MarketFamily{domain.FamilyTotal, domain.FamilyHandicap}, r.Families())
	assert.True(t, r.Supports(domain.FamilyHandicap))
	assert.False(t, r.Supports(domain.FamilyMoneyline))
	assert.False(t, NewRegistry().Supports(domain.FamilyTotal))
}
