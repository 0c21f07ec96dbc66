package engine

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Failure reasons carried by results.
const (
	ReasonInvalidRequest      = "invalid_request"
	ReasonEventNotFound       = "event_not_found"
	ReasonMarketUnsupported   = "market_unsupported"
	ReasonMarketSuspended     = "market_suspended"
	ReasonTranslationFailed   = "translation_failed"
	ReasonRecordNotFound      = "record_not_found"
	ReasonRecordFinal         = "record_final"
	ReasonTicketNotFound      = "ticket_not_found"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonRejected            = "rejected"
	ReasonPendingUnresolved   = "pending_unresolved"
	ReasonVenueError          = "venue_error"
	ReasonCancelled           = "cancelled"
	ReasonCancelRequested     = "cancel_requested"
	ReasonShutdown            = "shutdown"
	ReasonSessionDeactivated  = "session_deactivated"
	ReasonTimeout             = "timeout"
	ReasonRetryCountMax       = "retry_count_max"
)

// OddsRequest asks for a live price on one leg.
type OddsRequest struct {
	OrderID  string
	Sport    string
	EventID  string
	HomeTeam string
	AwayTeam string
	League   string
	// MarketLabel is a normalized label, optionally a template such as
	// "Total Over(%s)" filled with Parameter.
	MarketLabel string
	// RawMarketID, when set, goes through the venue translator instead.
	RawMarketID  string
	Parameter    string
	Stake        decimal.Decimal
	RemainingSec int
	Command      json.RawMessage
}

func (r OddsRequest) eventKey() domain.EventKey {
	return domain.EventKey{Sport: r.Sport, HomeTeam: r.HomeTeam, AwayTeam: r.AwayTeam, League: r.League}
}

// OddsResult answers an OddsRequest.
type OddsResult struct {
	OrderID  string          `json:"order_id"`
	Handler  string          `json:"handler"`
	Success  bool            `json:"success"`
	EventID  string          `json:"event_id,omitempty"`
	Market   string          `json:"market,omitempty"`
	LineID   string          `json:"line_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
	MaxStake decimal.Decimal `json:"max_stake"`
	Reason   string          `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// BetResult answers PlaceBet.
type BetResult struct {
	OrderID  string          `json:"order_id"`
	Handler  string          `json:"handler"`
	Success  bool            `json:"success"`
	TicketID string          `json:"ticket_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Stake    decimal.Decimal `json:"stake"`
	Reason   string          `json:"reason,omitempty"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// OpponentLeg summarizes the sibling leg whose outcome triggered the
// compensating loop.
type OpponentLeg struct {
	Handler string          `json:"handler"`
	Market  domain.Market   `json:"market"`
	Price   decimal.Decimal `json:"price"`
	Stake   decimal.Decimal `json:"stake"`
}

// Outcome is the terminal state of a compensating loop.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeMaxRetries Outcome = "retry_count_max"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeFailed     Outcome = "failed"
)

// CompensationResult answers PlaceCompensatingBet.
type CompensationResult struct {
	OrderID  string          `json:"order_id"`
	Handler  string          `json:"handler"`
	Outcome  Outcome         `json:"outcome"`
	Reason   string          `json:"reason,omitempty"`
	Window   string          `json:"window,omitempty"`
	Retries  int             `json:"retries"`
	Attempts int             `json:"attempts"`
	TicketID string          `json:"ticket_id,omitempty"`
	Market   string          `json:"market,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Stake    decimal.Decimal `json:"stake"`
	DropPct  decimal.Decimal `json:"drop_pct"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// Success reports whether the compensating bet was placed.
func (r CompensationResult) Success() bool {
	return r.Outcome == OutcomeAccepted
}

// CancelResult answers CancelBet.
type CancelResult struct {
	OrderID  string `json:"order_id"`
	Handler  string `json:"handler"`
	Success  bool   `json:"success"`
	TicketID string `json:"ticket_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}
