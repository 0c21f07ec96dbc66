package orchestrator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/engine"
)

// EventSink receives outbound events. data is JSON-encoded by the sink.
type EventSink interface {
	Emit(ctx context.Context, eventType string, data any) error
}

// Order status phases reported through order_status_update.
const (
	PhaseCreated   = "created"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// OrderStatusEvent is the order_status_update payload.
type OrderStatusEvent struct {
	OrderID  string `json:"order_id"`
	Handler  string `json:"handler"`
	Status   string `json:"status"`
	Success  bool   `json:"success"`
	TicketID string `json:"ticket_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// BalanceEvent is the balance_update payload.
type BalanceEvent struct {
	Handler string          `json:"handler"`
	Success bool            `json:"success"`
	Balance decimal.Decimal `json:"balance"`
	At      time.Time       `json:"at"`
	Message string          `json:"message,omitempty"`
}

// SupplementEvent is the supplement_order / supplement_order_failed
// payload.
type SupplementEvent struct {
	engine.CompensationResult
	OpponentHandler string `json:"opponent_handler,omitempty"`
}

// AutomationEvent is the automation_config payload.
type AutomationEvent struct {
	Success bool                    `json:"success"`
	Config  config.AutomationConfig `json:"config"`
	Error   string                  `json:"error,omitempty"`
}

// StopCycleResult is the task result of stop_pin888_cycle.
type StopCycleResult struct {
	Handler string `json:"handler"`
	Flagged bool   `json:"flagged"`
}

// HandlerStatusResult is the task result of handler_status.
type HandlerStatusResult struct {
	Handler string `json:"handler"`
	Active  bool   `json:"active"`
}
