package bridge

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wire types exchanged with the automation sidecar. Markets travel as their
// canonical label ("Total Over(2.5)") and decimals as strings.

type infoResponse struct {
	Platform        string          `json:"platform"`
	StakePrecision  *int32          `json:"stake_precision,omitempty"`
	MinStake        decimal.Decimal `json:"min_stake"`
	AsyncSettlement bool            `json:"async_settlement"`
}

type eventQuery struct {
	Sport    string `json:"sport"`
	EventID  string `json:"event_id,omitempty"`
	HomeTeam string `json:"home_team,omitempty"`
	AwayTeam string `json:"away_team,omitempty"`
	League   string `json:"league,omitempty"`
}

type wireEvent struct {
	EventID  string    `json:"event_id"`
	HomeTeam string    `json:"home_team"`
	AwayTeam string    `json:"away_team"`
	League   string    `json:"league"`
	StartsAt time.Time `json:"starts_at"`
}

type wireQuote struct {
	Market   string          `json:"market"`
	LineID   string          `json:"line_id"`
	Price    decimal.Decimal `json:"price"`
	MaxStake decimal.Decimal `json:"max_stake"`
}

type wireOffer struct {
	Market    string          `json:"market"`
	LineID    string          `json:"line_id"`
	Price     decimal.Decimal `json:"price"`
	MaxStake  decimal.Decimal `json:"max_stake"`
	Suspended bool            `json:"suspended"`
}

type wireBoard struct {
	EventID string      `json:"event_id"`
	Offers  []wireOffer `json:"offers"`
	TakenAt time.Time   `json:"taken_at"`
}

type placeBody struct {
	OrderID string          `json:"order_id"`
	EventID string          `json:"event_id"`
	Market  string          `json:"market"`
	LineID  string          `json:"line_id,omitempty"`
	Price   decimal.Decimal `json:"price"`
	Stake   decimal.Decimal `json:"stake"`
}

type wirePlacement struct {
	TicketID string          `json:"ticket_id"`
	State    string          `json:"state"`
	Price    decimal.Decimal `json:"price"`
	Stake    decimal.Decimal `json:"stake"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type translateBody struct {
	Sport     string `json:"sport"`
	MarketID  string `json:"market_id"`
	Parameter string `json:"parameter,omitempty"`
}

type translateResponse struct {
	Market string `json:"market"`
}

// errorResponse is the sidecar's error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
