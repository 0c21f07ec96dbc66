package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/session"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// FetchOdds resolves the event and market for req, quotes a live price and
// creates or refreshes the order record.
func (e *Engine) FetchOdds(ctx context.Context, s *session.Session, req OddsRequest) OddsResult {
	res := OddsResult{OrderID: req.OrderID, Handler: s.Handler()}
	if req.OrderID == "" {
		res.Reason, res.Message = ReasonInvalidRequest, "missing order id"
		return res
	}

	if cur, ok := s.Records().Get(req.OrderID); ok && cur.Final() {
		res.Reason = ReasonRecordFinal
		res.Message = fmt.Sprintf("order already %s", cur.Status)
		return res
	}

	market, err := e.resolveMarket(ctx, req)
	if err != nil {
		res.Reason, res.Message = ReasonTranslationFailed, err.Error()
		return res
	}
	res.Market = market.String()

	var (
		ev venue.EventRef
		q  venue.Quote
	)
	query := venue.EventQuery{
		Sport:    req.Sport,
		EventID:  req.EventID,
		HomeTeam: req.HomeTeam,
		AwayTeam: req.AwayTeam,
		League:   req.League,
	}
	err = e.withVenue(ctx, s, func(v venue.Venue) error {
		var err error
		if ev, err = resolveEvent(ctx, v, query); err != nil {
			return err
		}
		q, err = v.Quote(ctx, ev.EventID, market)
		return err
	})
	if err != nil {
		res.Reason, res.Message = e.venueFailure(s, err), err.Error()
		e.logger.InfoContext(ctx, "odds unavailable",
			slog.String("handler", s.Handler()),
			slog.String("order_id", req.OrderID),
			slog.String("market", market.String()),
			slog.String("reason", res.Reason),
		)
		return res
	}

	rec, ok := s.Records().Get(req.OrderID)
	if !ok {
		rec = domain.OrderRecord{
			OrderID:  req.OrderID,
			Handler:  s.Handler(),
			Platform: s.Venue().Info().Platform,
		}
	}
	if q.Market.Family != domain.FamilyUnknown {
		market = q.Market
	}
	rec.Market = market
	rec.EventID = ev.EventID
	if key := req.eventKey(); key != (domain.EventKey{}) {
		rec.Event = key
	}
	rec.LineID = q.LineID
	rec.Price = q.Price
	rec.MaxStake = q.MaxStake
	if !rec.ReferencePrice.IsPositive() {
		rec.ReferencePrice = q.Price
	}
	if req.Stake.IsPositive() {
		rec.Stake = req.Stake
	}
	if req.RemainingSec > 0 {
		rec.RemainingSec = req.RemainingSec
	}
	if len(req.Command) > 0 {
		rec.Command = req.Command
	}
	rec, err = s.Records().Put(rec)
	if err != nil {
		res.Reason, res.Message = ReasonRecordFinal, err.Error()
		return res
	}
	e.persist(ctx, rec)

	res.Success = true
	res.EventID = rec.EventID
	res.Market = rec.Market.String()
	res.LineID = rec.LineID
	res.Price = rec.Price
	res.MaxStake = rec.MaxStake
	return res
}

func (e *Engine) resolveMarket(ctx context.Context, req OddsRequest) (domain.Market, error) {
	if req.RawMarketID != "" {
		return e.translator.Translate(ctx, req.Sport, req.RawMarketID, req.Parameter)
	}
	if req.MarketLabel == "" {
		return domain.Market{}, fmt.Errorf("engine: no market given: %w", venue.ErrTranslation)
	}
	return venue.LabelTranslator{}.Translate(ctx, req.Sport, req.MarketLabel, req.Parameter)
}

// resolveEvent looks the event up by id first and falls back to a fuzzy
// team-name match against the live list.
func resolveEvent(ctx context.Context, v venue.Venue, q venue.EventQuery) (venue.EventRef, error) {
	if q.EventID != "" {
		ev, err := v.ResolveEvent(ctx, q)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, venue.ErrEventNotFound) {
			return venue.EventRef{}, err
		}
	}
	if q.HomeTeam == "" || q.AwayTeam == "" {
		return venue.EventRef{}, fmt.Errorf("engine: event %q: %w", q.EventID, venue.ErrEventNotFound)
	}
	live, err := v.ListLiveEvents(ctx, q.Sport)
	if err != nil {
		return venue.EventRef{}, err
	}
	ev, ok := venue.MatchEvent(q, live)
	if !ok {
		return venue.EventRef{}, fmt.Errorf("engine: %s vs %s: %w", q.HomeTeam, q.AwayTeam, venue.ErrEventNotFound)
	}
	return ev, nil
}
