package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/engine"
)

// NewOrderData is the payload of new_order.
type NewOrderData struct {
	OrderID      string          `json:"order_id"`
	Handler      string          `json:"handler"`
	Sport        string          `json:"sport"`
	EventID      string          `json:"event_id"`
	HomeTeam     string          `json:"home_team"`
	AwayTeam     string          `json:"away_team"`
	League       string          `json:"league"`
	Market       string          `json:"market"`
	RawMarketID  string          `json:"raw_market_id"`
	Parameter    string          `json:"parameter"`
	Stake        decimal.Decimal `json:"stake"`
	RemainingSec int             `json:"remaining_sec"`
}

func (d NewOrderData) validate() error {
	if d.OrderID == "" || d.Handler == "" {
		return fmt.Errorf("new_order: order_id and handler are required: %w", domain.ErrInvalidCommand)
	}
	if d.Market == "" && d.RawMarketID == "" {
		return fmt.Errorf("new_order %s: market or raw_market_id is required: %w", d.OrderID, domain.ErrInvalidCommand)
	}
	return nil
}

func (d NewOrderData) request(raw json.RawMessage) engine.OddsRequest {
	return engine.OddsRequest{
		OrderID:      d.OrderID,
		Sport:        d.Sport,
		EventID:      d.EventID,
		HomeTeam:     d.HomeTeam,
		AwayTeam:     d.AwayTeam,
		League:       d.League,
		MarketLabel:  d.Market,
		RawMarketID:  d.RawMarketID,
		Parameter:    d.Parameter,
		Stake:        d.Stake,
		RemainingSec: d.RemainingSec,
		Command:      raw,
	}
}

// BettingData is the payload of betting_order and betting.
type BettingData struct {
	OrderID string          `json:"order_id"`
	Handler string          `json:"handler"`
	Stake   decimal.Decimal `json:"stake"`
}

func (d BettingData) validate() error {
	if d.OrderID == "" || d.Handler == "" {
		return fmt.Errorf("betting: order_id and handler are required: %w", domain.ErrInvalidCommand)
	}
	return nil
}

// OpponentData describes the sibling leg in single_side_* commands.
type OpponentData struct {
	Handler string          `json:"handler"`
	Market  string          `json:"market"`
	Price   decimal.Decimal `json:"price"`
	Stake   decimal.Decimal `json:"stake"`
}

// SingleSideData is the payload of single_side_success and
// single_side_failure. Handler is the session that still has to act.
type SingleSideData struct {
	OrderID  string       `json:"order_id"`
	Handler  string       `json:"handler"`
	Opponent OpponentData `json:"opponent"`
	Reason   string       `json:"reason,omitempty"`
}

func (d SingleSideData) validate() error {
	if d.OrderID == "" || d.Handler == "" {
		return fmt.Errorf("single_side: order_id and handler are required: %w", domain.ErrInvalidCommand)
	}
	return nil
}

// leg converts the opponent summary. An unreadable market label leaves the
// market empty so the loop falls back to exact matching.
func (d SingleSideData) leg() (engine.OpponentLeg, error) {
	leg := engine.OpponentLeg{
		Handler: d.Opponent.Handler,
		Price:   d.Opponent.Price,
		Stake:   d.Opponent.Stake,
	}
	if strings.TrimSpace(d.Opponent.Market) == "" {
		return leg, nil
	}
	m, err := domain.ParseMarket(d.Opponent.Market)
	if err != nil {
		return leg, err
	}
	leg.Market = m
	return leg, nil
}

// HandlerData is the payload of request_balance and stop_pin888_cycle.
type HandlerData struct {
	Handler string `json:"handler"`
}

func (d HandlerData) validate() error {
	if d.Handler == "" {
		return fmt.Errorf("handler is required: %w", domain.ErrInvalidCommand)
	}
	return nil
}

// CancelOrderData is the payload of cancel_order.
type CancelOrderData struct {
	OrderID string `json:"order_id"`
	Handler string `json:"handler"`
}

func (d CancelOrderData) validate() error {
	if d.OrderID == "" || d.Handler == "" {
		return fmt.Errorf("cancel_order: order_id and handler are required: %w", domain.ErrInvalidCommand)
	}
	return nil
}

// HandlerStatusData is the payload of handler_status. Active handlers get a
// session built from Descriptor; inactive ones are torn down.
type HandlerStatusData struct {
	Handler    string         `json:"handler"`
	Platform   string         `json:"platform"`
	Active     bool           `json:"active"`
	Descriptor DescriptorData `json:"descriptor"`
}

// DescriptorData locates the live resource behind a handler.
type DescriptorData struct {
	Endpoint  string `json:"endpoint"`
	ProfileID string `json:"profile_id"`
	Account   string `json:"account"`
}

func (d HandlerStatusData) validate() error {
	if d.Handler == "" {
		return fmt.Errorf("handler_status: handler is required: %w", domain.ErrInvalidCommand)
	}
	if d.Active && (d.Platform == "" || d.Descriptor.Endpoint == "") {
		return fmt.Errorf("handler_status %s: platform and endpoint are required: %w", d.Handler, domain.ErrInvalidCommand)
	}
	return nil
}

// decode unmarshals an envelope's data into v.
func decode(env domain.Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: empty data: %w", env.Type, domain.ErrInvalidCommand)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %v: %w", env.Type, err, domain.ErrInvalidCommand)
	}
	return nil
}

// OrderID extracts the order id carried by a command, if any.
func OrderID(env domain.Envelope) string {
	var peek struct {
		OrderID string `json:"order_id"`
	}
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &peek) != nil {
		return ""
	}
	return peek.OrderID
}

// Known reports whether t is a command this orchestrator handles.
func Known(t string) bool {
	switch t {
	case domain.CmdNewOrder, domain.CmdBettingOrder, domain.CmdBetting,
		domain.CmdSingleSideSuccess, domain.CmdSingleSideFailure,
		domain.CmdRequestBalance, domain.CmdCancelOrder, domain.CmdStopCycle,
		domain.CmdSetAutomationConfig, domain.CmdHandlerStatus:
		return true
	}
	return false
}
