package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MarketFamily classifies a bet type. Total and Handicap markets are priced
// on a numeric line; the rest are discrete outcomes.
type MarketFamily int

const (
	FamilyUnknown MarketFamily = iota
	FamilyTotal
	FamilyHandicap
	FamilyMoneyline
	FamilyOther
)

var familyNames = map[MarketFamily]string{
	FamilyUnknown:   "unknown",
	FamilyTotal:     "total",
	FamilyHandicap:  "handicap",
	FamilyMoneyline: "moneyline",
	FamilyOther:     "other",
}

func (f MarketFamily) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return "unknown"
}

// LineBased reports whether markets of this family carry a numeric line.
func (f MarketFamily) LineBased() bool {
	return f == FamilyTotal || f == FamilyHandicap
}

// MarshalText implements encoding.TextMarshaler.
func (f MarketFamily) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *MarketFamily) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for k, v := range familyNames {
		if v == s {
			*f = k
			return nil
		}
	}
	return fmt.Errorf("%w: unknown market family %q", ErrInvalidMarket, text)
}

// Side is the outcome a bet backs within its market.
type Side string

const (
	SideNone  Side = ""
	SideOver  Side = "over"
	SideUnder Side = "under"
	SideHome  Side = "home"
	SideAway  Side = "away"
	SideDraw  Side = "draw"
)

// Market is the normalized market descriptor. Venue-specific identifiers are
// translated into this shape once, at the edge.
type Market struct {
	Family MarketFamily    `json:"family"`
	Side   Side            `json:"side"`
	Line   decimal.Decimal `json:"line"`
	Period string          `json:"period,omitempty"`
	Label  string          `json:"label,omitempty"`
}

// NewTotal builds a Total market on line.
func NewTotal(side Side, line decimal.Decimal) Market {
	m := Market{Family: FamilyTotal, Side: side, Line: line}
	m.Label = m.String()
	return m
}

// NewHandicap builds a Handicap market on line. SideHome is Handicap1.
func NewHandicap(side Side, line decimal.Decimal) Market {
	m := Market{Family: FamilyHandicap, Side: side, Line: line}
	m.Label = m.String()
	return m
}

// Same reports whether m and o describe the same priced outcome.
func (m Market) Same(o Market) bool {
	if m.Family != o.Family || m.Side != o.Side || !strings.EqualFold(m.Period, o.Period) {
		return false
	}
	if m.Family == FamilyOther || m.Family == FamilyUnknown {
		return strings.EqualFold(strings.TrimSpace(m.Label), strings.TrimSpace(o.Label))
	}
	return m.Line.Equal(o.Line)
}

// String renders the canonical label, e.g. "Total Over(2.5)" or
// "1st Half: Handicap2(-0.25)".
func (m Market) String() string {
	var body string
	switch m.Family {
	case FamilyTotal:
		side := "Over"
		if m.Side == SideUnder {
			side = "Under"
		}
		body = fmt.Sprintf("Total %s(%s)", side, m.Line.String())
	case FamilyHandicap:
		n := "1"
		if m.Side == SideAway {
			n = "2"
		}
		body = fmt.Sprintf("Handicap%s(%s)", n, m.Line.String())
	case FamilyMoneyline:
		body = "Moneyline " + moneylineCode(m.Side)
	default:
		return m.Label
	}
	if m.Period != "" {
		return m.Period + ": " + body
	}
	return body
}

func moneylineCode(s Side) string {
	switch s {
	case SideHome:
		return "1"
	case SideAway:
		return "2"
	case SideDraw:
		return "X"
	}
	return string(s)
}

var (
	lineMarketRE = regexp.MustCompile(`(?i)^(?:([^:]+):\s*)?(?:asian\s+)?(total|handicap)\s*(over|under|1|2)\s*\(\s*([+-]?\d+(?:\.\d+)?)\s*\)$`)
	moneylineRE  = regexp.MustCompile(`(?i)^(?:([^:]+):\s*)?(?:moneyline|1x2|ml)\s+(1|2|x|home|away|draw)$`)
)

// ParseMarket normalizes a free-text market label such as "Total Over(2.5)",
// "Asian Handicap1(-0.5)" or "1st Half: Total Under(1)". Labels that match no
// known family are returned as FamilyOther so they can still be matched
// exactly.
func ParseMarket(label string) (Market, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Market{}, fmt.Errorf("%w: empty label", ErrInvalidMarket)
	}

	if m := lineMarketRE.FindStringSubmatch(label); m != nil {
		line, err := decimal.NewFromString(m[4])
		if err != nil {
			return Market{}, fmt.Errorf("%w: line %q: %v", ErrInvalidMarket, m[4], err)
		}
		out := Market{Line: line, Period: strings.TrimSpace(m[1]), Label: label}
		switch strings.ToLower(m[2]) {
		case "total":
			out.Family = FamilyTotal
			switch strings.ToLower(m[3]) {
			case "over":
				out.Side = SideOver
			case "under":
				out.Side = SideUnder
			default:
				return Market{}, fmt.Errorf("%w: total needs over/under, got %q", ErrInvalidMarket, label)
			}
		case "handicap":
			out.Family = FamilyHandicap
			switch strings.ToLower(m[3]) {
			case "1":
				out.Side = SideHome
			case "2":
				out.Side = SideAway
			default:
				return Market{}, fmt.Errorf("%w: handicap needs 1/2, got %q", ErrInvalidMarket, label)
			}
		}
		return out, nil
	}

	if m := moneylineRE.FindStringSubmatch(label); m != nil {
		out := Market{Family: FamilyMoneyline, Period: strings.TrimSpace(m[1]), Label: label}
		switch strings.ToLower(m[2]) {
		case "1", "home":
			out.Side = SideHome
		case "2", "away":
			out.Side = SideAway
		default:
			out.Side = SideDraw
		}
		return out, nil
	}

	return Market{Family: FamilyOther, Label: label}, nil
}
