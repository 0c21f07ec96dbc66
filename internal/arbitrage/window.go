// Package arbitrage holds the pure calculators that gate compensating bets:
// the admissible line window, the odds-drop guard and stake sizing.
package arbitrage

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Comparator is the direction of a window bound.
type Comparator int

const (
	AtLeast Comparator = iota // candidate >= bound
	AtMost                    // candidate <= bound
)

func (c Comparator) String() string {
	if c == AtMost {
		return "<="
	}
	return ">="
}

// Window is the set of lines on which a compensating bet keeps the pair
// profitable.
type Window struct {
	Family domain.MarketFamily
	Side   domain.Side
	Op     Comparator
	Bound  decimal.Decimal
	Period string
}

// Admits reports whether a candidate line lies inside the window.
func (w Window) Admits(line decimal.Decimal) bool {
	if w.Op == AtMost {
		return line.LessThanOrEqual(w.Bound)
	}
	return line.GreaterThanOrEqual(w.Bound)
}

// Matches reports whether m is on the compensating side and inside the
// window.
func (w Window) Matches(m domain.Market) bool {
	if m.Family != w.Family || m.Side != w.Side {
		return false
	}
	if !strings.EqualFold(m.Period, w.Period) {
		return false
	}
	return w.Admits(m.Line)
}

// Tag is the compensating side tag: over, under, handicap-home or
// handicap-away.
func (w Window) Tag() string {
	if w.Family == domain.FamilyHandicap {
		return "handicap-" + string(w.Side)
	}
	return string(w.Side)
}

func (w Window) String() string {
	return fmt.Sprintf("%s %s %s", w.Tag(), w.Op, w.Bound.String())
}

// Equivalent reports whether two windows admit the same interval of lines,
// regardless of side.
func (w Window) Equivalent(o Window) bool {
	return w.Op == o.Op && w.Bound.Equal(o.Bound)
}
