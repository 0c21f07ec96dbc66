package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/engine"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// reasonSessionNotFound is reported when no session can serve a handler.
const reasonSessionNotFound = "session_not_found"

func (o *Orchestrator) dispatch(ctx context.Context, env domain.Envelope) (any, error) {
	switch env.Type {
	case domain.CmdNewOrder:
		return o.newOrder(ctx, env)
	case domain.CmdBettingOrder, domain.CmdBetting:
		return o.betting(ctx, env)
	case domain.CmdSingleSideSuccess:
		return o.singleSideSuccess(ctx, env)
	case domain.CmdSingleSideFailure:
		return o.singleSideFailure(ctx, env)
	case domain.CmdRequestBalance:
		return o.requestBalance(ctx, env)
	case domain.CmdCancelOrder:
		return o.cancelOrder(ctx, env)
	case domain.CmdStopCycle:
		return o.stopCycle(env)
	case domain.CmdSetAutomationConfig:
		return o.setAutomation(ctx, env)
	case domain.CmdHandlerStatus:
		return o.handlerStatus(ctx, env)
	}
	return nil, fmt.Errorf("orchestrator: %q: %w", env.Type, domain.ErrInvalidCommand)
}

func (o *Orchestrator) newOrder(ctx context.Context, env domain.Envelope) (any, error) {
	var d NewOrderData
	if err := decode(env, &d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	s, err := o.session(ctx, d.Handler)
	if err != nil {
		res := engine.OddsResult{OrderID: d.OrderID, Handler: d.Handler, Reason: reasonSessionNotFound, Message: err.Error()}
		o.emit(ctx, domain.EvtOddResult, res)
		return res, nil
	}
	res := o.engine.FetchOdds(ctx, s, d.request(env.Data))
	o.emit(ctx, domain.EvtOddResult, res)
	return res, nil
}

func (o *Orchestrator) betting(ctx context.Context, env domain.Envelope) (any, error) {
	var d BettingData
	if err := decode(env, &d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	s, err := o.session(ctx, d.Handler)
	if err != nil {
		res := engine.BetResult{OrderID: d.OrderID, Handler: d.Handler, Reason: reasonSessionNotFound, Message: err.Error()}
		o.emit(ctx, domain.EvtBettingResult, res)
		return res, nil
	}

	async := s.Venue().Info().AsyncSettlement
	if async {
		o.emit(ctx, domain.EvtOrderStatusUpdate, OrderStatusEvent{
			OrderID: d.OrderID, Handler: d.Handler, Status: PhaseCreated, Success: true,
		})
	}
	res := o.engine.PlaceBet(ctx, s, d.OrderID, d.Stake)
	o.emit(ctx, domain.EvtBettingResult, res)
	if async {
		phase := PhaseCompleted
		if !res.Success {
			phase = PhaseFailed
		}
		o.emit(ctx, domain.EvtOrderStatusUpdate, OrderStatusEvent{
			OrderID:  d.OrderID,
			Handler:  d.Handler,
			Status:   phase,
			Success:  res.Success,
			TicketID: res.TicketID,
			Reason:   res.Reason,
		})
	}
	return res, nil
}

// singleSideSuccess runs the compensating loop on the handler whose leg is
// still open. Every outcome emits exactly one supplement event.
func (o *Orchestrator) singleSideSuccess(ctx context.Context, env domain.Envelope) (any, error) {
	var d SingleSideData
	if err := decode(env, &d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	leg, err := d.leg()
	if err != nil {
		o.logger.Warn("opponent market unreadable, using exact match",
			slog.String("order_id", d.OrderID),
			slog.String("market", d.Opponent.Market),
			slog.String("error", err.Error()),
		)
	}

	var res engine.CompensationResult
	s, err := o.session(ctx, d.Handler)
	if err != nil {
		res = engine.CompensationResult{
			OrderID: d.OrderID,
			Handler: d.Handler,
			Outcome: engine.OutcomeFailed,
			Reason:  reasonSessionNotFound,
		}
	} else {
		res = o.engine.PlaceCompensatingBet(ctx, s, d.OrderID, leg)
	}

	evt := SupplementEvent{CompensationResult: res, OpponentHandler: leg.Handler}
	if res.Success() {
		o.emit(ctx, domain.EvtSupplementOrder, evt)
	} else {
		o.emit(ctx, domain.EvtSupplementOrderFailed, evt)
	}
	return res, nil
}

// singleSideFailure closes the order without retrying.
func (o *Orchestrator) singleSideFailure(ctx context.Context, env domain.Envelope) (any, error) {
	var d SingleSideData
	if err := decode(env, &d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	evt := OrderStatusEvent{OrderID: d.OrderID, Handler: d.Handler, Status: PhaseFailed, Reason: d.Reason}

	s := o.registry.Get(d.Handler)
	if s == nil {
		evt.Reason = reasonSessionNotFound
		o.emit(ctx, domain.EvtOrderStatusUpdate, evt)
		return evt, nil
	}
	if _, err := o.engine.RecordFailure(ctx, s, d.OrderID, d.Reason); err != nil {
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			evt.Reason = engine.ReasonRecordNotFound
		case errors.Is(err, domain.ErrRecordFinal):
			evt.Reason = engine.ReasonRecordFinal
		default:
			return nil, err
		}
	} else {
		evt.Success = true
	}
	o.emit(ctx, domain.EvtOrderStatusUpdate, evt)
	return evt, nil
}

func (o *Orchestrator) requestBalance(ctx context.Context, env domain.Envelope) (any, error) {
	var d HandlerData
	if err := decode(env, &d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	s, err := o.session(ctx, d.Handler)
	if err != nil {
		evt := BalanceEvent{Handler: d.Handler, At: time.Now().UTC(), Message: reasonSessionNotFound}
		o.emit(ctx, domain.EvtBalanceUpdate, evt)
		return evt, nil
	}
	// A successful refresh is published by the engine's balance callback.
	bal, err := o.engine.RefreshBalance(ctx, s)
	if err != nil {
		evt := BalanceEvent{Handler: d.Handler, Balance: s.Balance(), At: time.Now().UTC(), Message: err.Error()}
		o.emit(ctx, domain.EvtBalanceUpdate, evt)
		return evt, nil
	}
	return BalanceEvent{Handler: d.Handler, Success: true, Balance: bal, At: time.Now().UTC()}, nil
}

func (o *Orchestrator) cancelOrder(ctx context.Context, env domain.Envelope) (any, error) {
	var d CancelOrderData
	if err := decode(env, &d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	var res engine.CancelResult
	if s := o.registry.Get(d.Handler); s == nil {
		res = engine.CancelResult{OrderID: d.OrderID, Handler: d.Handler, Reason: reasonSessionNotFound}
	} else {
		res = o.engine.CancelBet(ctx, s, d.OrderID)
	}
	o.emit(ctx, domain.EvtCancelOrderResult, res)
	return res, nil
}

// stopCycle raises the handler's cancellation flag. The running loop, if
// any, consumes it at its next iteration boundary.
func (o *Orchestrator) stopCycle(env domain.Envelope) (any, error) {
	var d HandlerData
	if err := decode(env, &d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	s := o.registry.Get(d.Handler)
	if s == nil {
		return StopCycleResult{Handler: d.Handler}, fmt.Errorf("orchestrator: stop %s: %w", d.Handler, domain.ErrSessionNotFound)
	}
	s.RequestCancel()
	o.logger.Info("cancellation requested", slog.String("handler", d.Handler))
	return StopCycleResult{Handler: d.Handler, Flagged: true}, nil
}

func (o *Orchestrator) setAutomation(ctx context.Context, env domain.Envelope) (any, error) {
	var p config.AutomationPatch
	if err := decode(env, &p); err != nil {
		return nil, err
	}
	cfg, err := o.automation.Apply(p)
	evt := AutomationEvent{Success: err == nil, Config: cfg}
	if err != nil {
		evt.Error = err.Error()
	} else {
		o.logger.Info("automation config updated",
			slog.Float64("odds_drop_threshold_pct", cfg.OddsDropThresholdPct),
			slog.Float64("supplementary_timeout_sec", cfg.SupplementaryTimeoutSec),
			slog.Int("max_retry_count", cfg.MaxRetryCount),
		)
	}
	o.emit(ctx, domain.EvtAutomationConfig, evt)
	return evt, err
}

func (o *Orchestrator) handlerStatus(ctx context.Context, env domain.Envelope) (any, error) {
	var d HandlerStatusData
	if err := decode(env, &d); err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	if !d.Active {
		o.mu.Lock()
		delete(o.descriptors, d.Handler)
		o.mu.Unlock()
		if err := o.registry.Deactivate(d.Handler); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return HandlerStatusResult{Handler: d.Handler}, nil
	}

	desc := venue.Descriptor{
		Platform:  d.Platform,
		Endpoint:  d.Descriptor.Endpoint,
		ProfileID: d.Descriptor.ProfileID,
		Account:   d.Descriptor.Account,
	}
	o.SetDescriptor(d.Handler, desc)
	if _, err := o.registry.Ensure(ctx, d.Handler, desc); err != nil {
		return HandlerStatusResult{Handler: d.Handler}, err
	}
	return HandlerStatusResult{Handler: d.Handler, Active: true}, nil
}
