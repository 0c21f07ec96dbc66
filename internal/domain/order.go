package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RecordStatus tracks the order record lifecycle.
type RecordStatus string

const (
	RecordOpen      RecordStatus = "open"
	RecordPlaced    RecordStatus = "placed"
	RecordFailed    RecordStatus = "failed"
	RecordTimedOut  RecordStatus = "timed_out"
	RecordCancelled RecordStatus = "cancelled"
)

// Terminal reports whether no further mutation is allowed.
func (s RecordStatus) Terminal() bool {
	switch s {
	case RecordPlaced, RecordFailed, RecordTimedOut, RecordCancelled:
		return true
	}
	return false
}

// EventKey is what the dispatcher said about the event an order was matched
// on. It lets the event be resolved again when the venue re-keys it.
type EventKey struct {
	Sport    string `json:"sport,omitempty"`
	HomeTeam string `json:"home_team,omitempty"`
	AwayTeam string `json:"away_team,omitempty"`
	League   string `json:"league,omitempty"`
}

// OrderRecord is the per-order state owned by one account session.
type OrderRecord struct {
	OrderID  string `json:"order_id"`
	Handler  string `json:"handler"`
	Platform string `json:"platform"`

	Market  Market   `json:"market"`
	EventID string   `json:"event_id"`
	Event   EventKey `json:"event"`
	LineID  string   `json:"line_id"`

	// Price is the last observed price; ReferencePrice is the one recorded
	// when odds were first matched.
	Price          decimal.Decimal `json:"price"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	MaxStake       decimal.Decimal `json:"max_stake"`
	Stake          decimal.Decimal `json:"stake"`

	RetryCount   int          `json:"retry_count"`
	RemainingSec int          `json:"remaining_sec"`
	TicketID     string       `json:"ticket_id,omitempty"`
	Status       RecordStatus `json:"status"`

	Command   json.RawMessage `json:"command,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Final reports whether the record reached a terminal status.
func (r OrderRecord) Final() bool {
	return r.Status.Terminal()
}

// Budget returns the remaining-time estimate, or zero when unknown.
func (r OrderRecord) Budget() time.Duration {
	if r.RemainingSec <= 0 {
		return 0
	}
	return time.Duration(r.RemainingSec) * time.Second
}
