package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/arbitrage"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/session"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// step is the result of one compensating-loop iteration.
type step int

const (
	stepAccepted step = iota
	stepWait          // nothing tradeable yet
	stepRetry         // snapshot or submission failed; counts against the retry budget
	stepFatal         // the record can no longer be acted on
)

type iteration struct {
	kind    step
	reason  string
	offer   venue.Offer
	dropPct decimal.Decimal
	bet     BetResult
}

// pendingBet is a submission the venue neither accepted nor rejected. The
// loop polls its ticket instead of submitting again.
type pendingBet struct {
	ticket  string
	stake   decimal.Decimal
	offer   venue.Offer
	dropPct decimal.Decimal
}

// PlaceCompensatingBet searches the session's live odds for a line that keeps
// the pair profitable after the opponent leg settled, and places it.
//
// The loop is bounded by a wall-clock budget (the record's remaining time,
// else the configured supplementary timeout) and by the retry budget,
// whichever runs out first. The session's cancellation flag is consumed at
// every iteration boundary. Thresholds are re-read on every iteration.
//
// A deactivated handler ends the loop as cancelled. A broken session is
// rebuilt through the reviver, if one is set, and the loop carries on with
// the replacement.
func (e *Engine) PlaceCompensatingBet(ctx context.Context, s *session.Session, orderID string, opp OpponentLeg) CompensationResult {
	start := e.now()
	res := CompensationResult{OrderID: orderID, Handler: s.Handler()}
	finish := func() CompensationResult {
		res.Elapsed = e.now().Sub(start)
		return res
	}

	rec, ok := s.Records().Get(orderID)
	if !ok {
		res.Outcome, res.Reason = OutcomeFailed, ReasonRecordNotFound
		return finish()
	}
	if rec.Final() {
		res.Outcome, res.Reason = OutcomeFailed, ReasonRecordFinal
		return finish()
	}

	win, werr := e.windows.WindowFor(opp.Market)
	ranged := werr == nil
	if ranged {
		res.Window = win.String()
	}

	budget := rec.Budget()
	if budget <= 0 {
		budget = e.automation.Snapshot().SupplementaryTimeout()
	}
	deadline := start.Add(budget)
	res.Retries = rec.RetryCount

	log := e.logger.With(
		slog.String("handler", s.Handler()),
		slog.String("order_id", orderID),
	)
	log.InfoContext(ctx, "compensating loop started",
		slog.String("opponent_market", opp.Market.String()),
		slog.String("window", res.Window),
		slog.Duration("budget", budget),
	)

	var hold pendingBet
	for {
		if ctx.Err() != nil {
			// Shutdown leaves the record open so it can be resumed.
			res.Outcome, res.Reason = OutcomeCancelled, ReasonShutdown
			return finish()
		}
		if s.Deactivated() {
			res.Outcome, res.Reason = OutcomeCancelled, ReasonSessionDeactivated
			e.finalize(ctx, s, orderID, domain.RecordCancelled)
			log.InfoContext(ctx, "compensating loop stopped, session deactivated",
				slog.Int("retries", res.Retries),
				slog.String("ticket_id", res.TicketID),
			)
			return finish()
		}
		if s.ConsumeCancel() {
			res.Outcome, res.Reason = OutcomeCancelled, ReasonCancelRequested
			e.finalize(ctx, s, orderID, domain.RecordCancelled)
			log.InfoContext(ctx, "compensating loop cancelled", slog.Int("retries", res.Retries))
			return finish()
		}
		if !e.now().Before(deadline) {
			res.Outcome, res.Reason = OutcomeTimeout, ReasonTimeout
			e.finalize(ctx, s, orderID, domain.RecordTimedOut)
			log.WarnContext(ctx, "compensating loop timed out",
				slog.Int("retries", res.Retries),
				slog.Int("attempts", res.Attempts),
				slog.String("pending_ticket", hold.ticket),
			)
			return finish()
		}
		s = e.revive(ctx, s)

		auto := e.automation.Snapshot()
		it := e.iterate(ctx, s, orderID, opp, win, ranged, auto, &hold, &res)

		switch it.kind {
		case stepAccepted:
			res.Outcome = OutcomeAccepted
			res.TicketID = it.bet.TicketID
			res.Price, res.Stake = it.bet.Price, it.bet.Stake
			res.Market = it.offer.Market.String()
			res.DropPct = it.dropPct
			e.refreshAsync(s)
			log.InfoContext(ctx, "compensating bet accepted",
				slog.String("market", res.Market),
				slog.String("price", res.Price.String()),
				slog.String("stake", res.Stake.String()),
				slog.Int("retries", res.Retries),
			)
			return finish()

		case stepFatal:
			res.Outcome, res.Reason = OutcomeFailed, it.reason
			return finish()

		case stepRetry:
			if ctx.Err() != nil {
				continue
			}
			if res.Retries >= auto.MaxRetryCount {
				res.Outcome, res.Reason = OutcomeMaxRetries, ReasonRetryCountMax
				e.finalize(ctx, s, orderID, domain.RecordFailed)
				log.WarnContext(ctx, "compensating loop exhausted retries",
					slog.Int("retries", res.Retries),
					slog.String("last_reason", it.reason),
				)
				return finish()
			}
			res.Retries++
			e.bumpRetries(ctx, s, orderID, res.Retries)
			log.DebugContext(ctx, "compensating retry",
				slog.Int("retries", res.Retries),
				slog.String("reason", it.reason),
			)

		case stepWait:
			log.DebugContext(ctx, "compensating wait", slog.String("reason", it.reason))
		}

		sleep(ctx, min(e.opts.RetryDelay, remaining(deadline, e.now())))
	}
}

// iterate runs Searching, Evaluating, Sizing and Submitting once while
// holding the session token.
func (e *Engine) iterate(
	ctx context.Context,
	s *session.Session,
	orderID string,
	opp OpponentLeg,
	win arbitrage.Window,
	ranged bool,
	auto config.AutomationConfig,
	hold *pendingBet,
	res *CompensationResult,
) iteration {
	release, err := e.acquire(ctx, s)
	if err != nil {
		return iteration{kind: stepWait, reason: err.Error()}
	}
	defer release()

	rec, ok := s.Records().Get(orderID)
	if !ok {
		return iteration{kind: stepFatal, reason: ReasonRecordNotFound}
	}
	if rec.Final() {
		return iteration{kind: stepFatal, reason: ReasonRecordFinal}
	}

	if hold.ticket != "" {
		return e.recheck(ctx, s, rec, hold, res)
	}

	// Searching
	eventID, err := e.locateEvent(ctx, s, rec)
	if err != nil {
		return iteration{kind: stepRetry, reason: e.venueFailure(s, err)}
	}
	snap, err := s.Venue().Snapshot(ctx, eventID)
	if err != nil {
		if errors.Is(err, venue.ErrNeedRefresh) {
			return iteration{kind: stepWait, reason: "need_refresh"}
		}
		return iteration{kind: stepRetry, reason: e.venueFailure(s, err)}
	}

	// Evaluating
	offer, found := selectOffer(snap, rec, win, ranged)
	if !found {
		return iteration{kind: stepWait, reason: "no_matching_offer"}
	}
	ref := rec.ReferencePrice
	if !ref.IsPositive() {
		ref = opp.Price
	}
	verdict, drop := arbitrage.Classify(ref, offer.Price, auto.OddsDropThresholdPct)
	if !verdict.Acceptable() {
		return iteration{kind: stepWait, reason: string(verdict), offer: offer, dropPct: drop}
	}

	// Sizing
	stake := rec.Stake
	if opp.Stake.IsPositive() && opp.Price.IsPositive() {
		stake = arbitrage.CompensatingStake(opp.Stake, opp.Price, offer.Price)
	}

	rec, err = s.Records().Update(orderID, func(r *domain.OrderRecord) error {
		r.Market = offer.Market
		r.LineID = offer.LineID
		r.Price = offer.Price
		r.MaxStake = offer.MaxStake
		return nil
	})
	if err != nil {
		return iteration{kind: stepFatal, reason: ReasonRecordFinal}
	}
	e.persist(ctx, rec)

	// Submitting
	res.Attempts++
	bet := e.place(ctx, s, orderID, stake)
	if bet.Success {
		return iteration{kind: stepAccepted, offer: offer, dropPct: drop, bet: bet}
	}
	switch bet.Reason {
	case ReasonRecordNotFound, ReasonRecordFinal:
		return iteration{kind: stepFatal, reason: bet.Reason}
	case ReasonPendingUnresolved:
		if bet.TicketID == "" {
			// No ticket to poll.
			return iteration{kind: stepFatal, reason: bet.Reason}
		}
		*hold = pendingBet{ticket: bet.TicketID, stake: bet.Stake, offer: offer, dropPct: drop}
		res.TicketID = bet.TicketID
		e.setTicket(ctx, s, orderID, bet.TicketID)
		return iteration{kind: stepWait, reason: bet.Reason, offer: offer, dropPct: drop}
	}
	return iteration{kind: stepRetry, reason: bet.Reason, offer: offer, dropPct: drop, bet: bet}
}

// recheck polls a held pending ticket once. Acceptance completes the loop, a
// rejection releases the hold and counts as a retry, and anything else keeps
// waiting.
func (e *Engine) recheck(ctx context.Context, s *session.Session, rec domain.OrderRecord, hold *pendingBet, res *CompensationResult) iteration {
	p, err := s.Venue().PlacementStatus(ctx, hold.ticket)
	if err != nil {
		return iteration{kind: stepWait, reason: e.venueFailure(s, err)}
	}
	if p.TicketID == "" {
		p.TicketID = hold.ticket
	}

	switch p.State {
	case venue.PlacementPending:
		return iteration{kind: stepWait, reason: ReasonPendingUnresolved}
	case venue.PlacementAccepted:
		bet := BetResult{OrderID: rec.OrderID, Handler: s.Handler()}
		e.accept(ctx, s, rec, p, hold.stake, &bet)
		it := iteration{kind: stepAccepted, offer: hold.offer, dropPct: hold.dropPct, bet: bet}
		*hold = pendingBet{}
		return it
	}

	e.logger.InfoContext(ctx, "pending bet rejected",
		slog.String("handler", s.Handler()),
		slog.String("order_id", rec.OrderID),
		slog.String("ticket_id", hold.ticket),
		slog.String("code", p.Code),
	)
	*hold = pendingBet{}
	res.TicketID = ""
	e.setTicket(ctx, s, rec.OrderID, "")
	return iteration{kind: stepRetry, reason: ReasonRejected}
}

// locateEvent re-resolves the record's event and stores the id when the venue
// has moved it. Without team names a miss keeps the stored id.
func (e *Engine) locateEvent(ctx context.Context, s *session.Session, rec domain.OrderRecord) (string, error) {
	q := venue.EventQuery{
		Sport:    rec.Event.Sport,
		EventID:  rec.EventID,
		HomeTeam: rec.Event.HomeTeam,
		AwayTeam: rec.Event.AwayTeam,
		League:   rec.Event.League,
	}
	ev, err := resolveEvent(ctx, s.Venue(), q)
	if err != nil {
		if errors.Is(err, venue.ErrEventNotFound) && (q.HomeTeam == "" || q.AwayTeam == "") && rec.EventID != "" {
			return rec.EventID, nil
		}
		return "", err
	}
	if ev.EventID == "" || ev.EventID == rec.EventID {
		return rec.EventID, nil
	}

	updated, err := s.Records().Update(rec.OrderID, func(r *domain.OrderRecord) error {
		r.EventID = ev.EventID
		return nil
	})
	if err == nil {
		e.persist(ctx, updated)
	}
	e.logger.InfoContext(ctx, "event id changed",
		slog.String("handler", s.Handler()),
		slog.String("order_id", rec.OrderID),
		slog.String("from", rec.EventID),
		slog.String("to", ev.EventID),
	)
	return ev.EventID, nil
}

// revive swaps a broken session for its rebuilt replacement.
func (e *Engine) revive(ctx context.Context, s *session.Session) *session.Session {
	cur := s.Current()
	if e.reviver == nil || !cur.Broken() {
		return cur
	}
	next, err := e.reviver.Revive(ctx, cur.Handler())
	if err != nil {
		e.logger.DebugContext(ctx, "session revive failed",
			slog.String("handler", cur.Handler()),
			slog.String("error", err.Error()),
		)
		return cur
	}
	if next.Records() != cur.Records() {
		// A different lineage owns the handler now.
		return cur
	}
	return next
}

// selectOffer picks the compensating offer. Line-based families take the
// best-priced offer inside the window; everything else must match the
// recorded line or market exactly.
func selectOffer(snap venue.Snapshot, rec domain.OrderRecord, win arbitrage.Window, ranged bool) (venue.Offer, bool) {
	var best venue.Offer
	found := false
	for _, o := range snap.Offers {
		if o.Suspended || !o.Price.IsPositive() {
			continue
		}
		if ranged {
			if !win.Matches(o.Market) {
				continue
			}
			if !found || o.Price.GreaterThan(best.Price) {
				best, found = o, true
			}
			continue
		}
		if (rec.LineID != "" && o.LineID == rec.LineID) || o.Market.Same(rec.Market) {
			return o, true
		}
	}
	return best, found
}

func (e *Engine) setTicket(ctx context.Context, s *session.Session, orderID, ticket string) {
	rec, err := s.Records().Update(orderID, func(r *domain.OrderRecord) error {
		r.TicketID = ticket
		return nil
	})
	if err == nil {
		e.persist(ctx, rec)
	}
}

func (e *Engine) bumpRetries(ctx context.Context, s *session.Session, orderID string, n int) {
	rec, err := s.Records().Update(orderID, func(r *domain.OrderRecord) error {
		r.RetryCount = n
		return nil
	})
	if err == nil {
		e.persist(ctx, rec)
	}
}

// finalize moves the record to a terminal status.
func (e *Engine) finalize(ctx context.Context, s *session.Session, orderID string, status domain.RecordStatus) {
	rec, err := s.Records().Update(orderID, func(r *domain.OrderRecord) error {
		r.Status = status
		return nil
	})
	if err != nil {
		e.logger.DebugContext(ctx, "finalize record skipped",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.persist(ctx, rec)
	e.auditLog(ctx, "supplement_"+string(status), map[string]any{
		"handler":     s.Handler(),
		"order_id":    orderID,
		"retry_count": rec.RetryCount,
	})
}

// remaining is the loop budget left at t.
func remaining(deadline, t time.Time) time.Duration {
	if d := deadline.Sub(t); d > 0 {
		return d
	}
	return 0
}
