package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/arbitrage"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/session"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// PlaceBet submits stake on the order's recorded market and price. The stake
// is clamped to the session balance and rounded down to the venue's
// precision. Pending placements are polled until they settle or the poll
// budget runs out.
func (e *Engine) PlaceBet(ctx context.Context, s *session.Session, orderID string, stake decimal.Decimal) BetResult {
	var res BetResult
	err := e.withVenue(ctx, s, func(venue.Venue) error {
		res = e.place(ctx, s, orderID, stake)
		return nil
	})
	if err != nil {
		return BetResult{OrderID: orderID, Handler: s.Handler(), Reason: e.venueFailure(s, err), Message: err.Error()}
	}
	if res.Success {
		e.refreshAsync(s)
	}
	return res
}

// place runs one submission. The caller holds the session token.
func (e *Engine) place(ctx context.Context, s *session.Session, orderID string, stake decimal.Decimal) BetResult {
	res := BetResult{OrderID: orderID, Handler: s.Handler()}
	rec, ok := s.Records().Get(orderID)
	if !ok {
		res.Reason = ReasonRecordNotFound
		return res
	}
	if rec.Final() {
		res.Reason, res.TicketID = ReasonRecordFinal, rec.TicketID
		return res
	}
	if !stake.IsPositive() {
		stake = rec.Stake
	}

	v := s.Venue()
	info := v.Info()
	if s.BalanceAt().IsZero() {
		if _, err := e.balanceLocked(ctx, s); err != nil {
			res.Reason, res.Message = e.venueFailure(s, err), err.Error()
			return res
		}
	}
	sized := arbitrage.ClampStake(stake, s.Balance(), rec.MaxStake, info.StakePrecision)
	if !sized.IsPositive() || (info.MinStake.IsPositive() && sized.LessThan(info.MinStake)) {
		res.Reason = ReasonInsufficientBalance
		res.Message = fmt.Sprintf("stake %s clamps to %s (balance %s)", stake, sized, s.Balance())
		return res
	}
	res.Stake = sized

	p, err := v.Place(ctx, venue.PlaceRequest{
		OrderID: rec.OrderID,
		EventID: rec.EventID,
		Market:  rec.Market,
		LineID:  rec.LineID,
		Price:   rec.Price,
		Stake:   sized,
	})
	if err != nil {
		res.Reason, res.Message = e.venueFailure(s, err), err.Error()
		return res
	}
	if p.State == venue.PlacementPending {
		p = e.awaitSettlement(ctx, s, p)
	}
	res.TicketID, res.Code, res.Message = p.TicketID, p.Code, p.Message

	switch p.State {
	case venue.PlacementAccepted:
	case venue.PlacementPending:
		res.Reason = ReasonPendingUnresolved
		return res
	default:
		res.Reason = ReasonRejected
		e.logger.InfoContext(ctx, "bet rejected",
			slog.String("handler", s.Handler()),
			slog.String("order_id", orderID),
			slog.String("code", p.Code),
			slog.String("message", p.Message),
		)
		return res
	}

	e.accept(ctx, s, rec, p, sized, &res)
	return res
}

// accept records a placement the venue accepted. The caller holds the
// session token.
func (e *Engine) accept(ctx context.Context, s *session.Session, rec domain.OrderRecord, p venue.Placement, sized decimal.Decimal, res *BetResult) {
	price := rec.Price
	if p.Price.IsPositive() {
		price = p.Price
	}
	if p.Stake.IsPositive() {
		sized = p.Stake
	}
	updated, err := s.Records().Update(rec.OrderID, func(r *domain.OrderRecord) error {
		r.Status = domain.RecordPlaced
		r.TicketID = p.TicketID
		r.Price = price
		r.Stake = sized
		return nil
	})
	if err != nil {
		// The venue accepted the bet; the record is reported as it stands.
		e.logger.WarnContext(ctx, "record placed bet failed",
			slog.String("order_id", rec.OrderID),
			slog.String("error", err.Error()),
		)
	} else {
		e.persist(ctx, updated)
	}
	s.SetBalance(decimal.Max(s.Balance().Sub(sized), decimal.Zero))

	res.Success = true
	res.TicketID = p.TicketID
	res.Price, res.Stake = price, sized
	e.auditLog(ctx, "bet_placed", map[string]any{
		"handler":   s.Handler(),
		"order_id":  rec.OrderID,
		"ticket_id": p.TicketID,
		"market":    rec.Market.String(),
		"price":     price.String(),
		"stake":     sized.String(),
	})
	e.logger.InfoContext(ctx, "bet placed",
		slog.String("handler", s.Handler()),
		slog.String("order_id", rec.OrderID),
		slog.String("ticket_id", p.TicketID),
		slog.String("price", price.String()),
		slog.String("stake", sized.String()),
	)
}

// awaitSettlement polls a pending placement a bounded number of times.
func (e *Engine) awaitSettlement(ctx context.Context, s *session.Session, p venue.Placement) venue.Placement {
	for i := 0; i < e.opts.PendingPollAttempts; i++ {
		if !sleep(ctx, e.opts.PendingPollInterval) {
			return p
		}
		next, err := s.Venue().PlacementStatus(ctx, p.TicketID)
		if err != nil {
			e.logger.DebugContext(ctx, "placement status failed",
				slog.String("handler", s.Handler()),
				slog.String("ticket_id", p.TicketID),
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		if next.TicketID == "" {
			next.TicketID = p.TicketID
		}
		p = next
		if p.State != venue.PlacementPending {
			return p
		}
	}
	return p
}

// CancelBet cancels the order's placed ticket. A missing record or ticket
// fails without contacting the venue.
func (e *Engine) CancelBet(ctx context.Context, s *session.Session, orderID string) CancelResult {
	res := CancelResult{OrderID: orderID, Handler: s.Handler()}
	rec, ok := s.Records().Get(orderID)
	if !ok {
		res.Reason = ReasonRecordNotFound
		return res
	}
	if rec.TicketID == "" {
		res.Reason = ReasonTicketNotFound
		return res
	}
	res.TicketID = rec.TicketID

	err := e.withVenue(ctx, s, func(v venue.Venue) error {
		return v.Cancel(ctx, rec.TicketID)
	})
	if err != nil {
		res.Reason, res.Message = e.venueFailure(s, err), err.Error()
		return res
	}

	res.Success = true
	e.auditLog(ctx, "bet_cancelled", map[string]any{
		"handler":   s.Handler(),
		"order_id":  orderID,
		"ticket_id": rec.TicketID,
	})
	e.refreshAsync(s)
	return res
}

// RefreshBalance queries the venue balance and stores it on the session.
func (e *Engine) RefreshBalance(ctx context.Context, s *session.Session) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := e.withVenue(ctx, s, func(venue.Venue) error {
		var err error
		bal, err = e.balanceLocked(ctx, s)
		return err
	})
	if err != nil {
		e.venueFailure(s, err)
		return decimal.Zero, err
	}
	if e.onBalance != nil {
		e.onBalance(ctx, s.Handler(), bal)
	}
	return bal, nil
}

func (e *Engine) balanceLocked(ctx context.Context, s *session.Session) (decimal.Decimal, error) {
	bal, err := s.Venue().Balance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("engine: balance %s: %w", s.Handler(), err)
	}
	s.SetBalance(bal)
	return bal, nil
}

// refreshAsync refreshes the balance in the background after a bet.
func (e *Engine) refreshAsync(s *session.Session) {
	e.refreshes.Add(1)
	go func() {
		defer e.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.BalanceRefreshTimeout)
		defer cancel()
		if _, err := e.RefreshBalance(ctx, s); err != nil {
			e.logger.Warn("balance refresh failed",
				slog.String("handler", s.Handler()),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// RecordFailure closes an open order as failed without contacting the venue.
func (e *Engine) RecordFailure(ctx context.Context, s *session.Session, orderID, reason string) (domain.OrderRecord, error) {
	rec, err := s.Records().Update(orderID, func(r *domain.OrderRecord) error {
		r.Status = domain.RecordFailed
		return nil
	})
	if err != nil {
		return rec, err
	}
	e.persist(ctx, rec)
	e.auditLog(ctx, "order_failed", map[string]any{
		"handler":  s.Handler(),
		"order_id": orderID,
		"reason":   reason,
	})
	return rec, nil
}
