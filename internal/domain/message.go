package domain

import "encoding/json"

// Envelope is the bus frame shared by inbound commands and outbound events.
type Envelope struct {
	Type string          `json:"type"`
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// Inbound command types.
const (
	CmdNewOrder            = "new_order"
	CmdBettingOrder        = "betting_order"
	CmdBetting             = "betting"
	CmdSingleSideSuccess   = "single_side_success"
	CmdSingleSideFailure   = "single_side_failure"
	CmdRequestBalance      = "request_balance"
	CmdCancelOrder         = "cancel_order"
	CmdStopCycle           = "stop_pin888_cycle"
	CmdSetAutomationConfig = "set_automation_config"
	CmdHandlerStatus       = "handler_status"
)

// Outbound event types.
const (
	EvtOddResult             = "odd_result"
	EvtBettingResult         = "betting_result"
	EvtOrderStatusUpdate     = "order_status_update"
	EvtCancelOrderResult     = "cancel_order_result"
	EvtBalanceUpdate         = "balance_update"
	EvtSupplementOrder       = "supplement_order"
	EvtSupplementOrderFailed = "supplement_order_failed"
	EvtAutomationConfig      = "automation_config"
)
