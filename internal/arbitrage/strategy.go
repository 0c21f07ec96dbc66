package arbitrage

import (
	"fmt"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Strategy computes the compensating window for one market family.
type Strategy interface {
	Family() domain.MarketFamily
	// Window returns the window for the side opposite the winning leg.
	Window(winning domain.Market) (Window, error)
}

type totalStrategy struct{}

func (totalStrategy) Family() domain.MarketFamily { return domain.FamilyTotal }

// Over(x) is covered by Under on any line >= x; Under(x) by Over on any
// line <= x.
func (totalStrategy) Window(m domain.Market) (Window, error) {
	w := Window{Family: domain.FamilyTotal, Bound: m.Line, Period: m.Period}
	switch m.Side {
	case domain.SideOver:
		w.Side, w.Op = domain.SideUnder, AtLeast
	case domain.SideUnder:
		w.Side, w.Op = domain.SideOver, AtMost
	default:
		return Window{}, fmt.Errorf("arbitrage: total side %q: %w", m.Side, domain.ErrUnsupportedMarket)
	}
	return w, nil
}

type handicapStrategy struct{}

func (handicapStrategy) Family() domain.MarketFamily { return domain.FamilyHandicap }

// Handicap1(x) is covered by Handicap2 bounded at -x; Handicap2(y) by
// Handicap1 bounded at y. The comparator follows the sign of the winning
// line so that Handicap1(x) and Handicap2(-x) admit the same interval.
func (handicapStrategy) Window(m domain.Market) (Window, error) {
	w := Window{Family: domain.FamilyHandicap, Period: m.Period}
	switch m.Side {
	case domain.SideHome:
		w.Side = domain.SideAway
		w.Bound = m.Line.Neg()
		if m.Line.IsNegative() {
			w.Op = AtMost
		} else {
			w.Op = AtLeast
		}
	case domain.SideAway:
		w.Side = domain.SideHome
		w.Bound = m.Line
		if m.Line.IsPositive() {
			w.Op = AtMost
		} else {
			w.Op = AtLeast
		}
	default:
		return Window{}, fmt.Errorf("arbitrage: handicap side %q: %w", m.Side, domain.ErrUnsupportedMarket)
	}
	return w, nil
}
