package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// Session is one bookmaker account driven through the sidecar.
type Session struct {
	c       *Client
	profile string
	info    venue.Info

	mu     sync.Mutex
	closed bool
}

// NewSession binds c to a sidecar profile. defaults are used for any field
// the sidecar's info endpoint leaves out.
func NewSession(ctx context.Context, c *Client, profile string, defaults venue.Info) (*Session, error) {
	s := &Session{c: c, profile: profile, info: defaults}

	var info infoResponse
	if err := c.do(ctx, http.MethodGet, s.path("/info"), nil, &info); err != nil {
		return nil, fmt.Errorf("bridge: info %s: %w", profile, err)
	}
	if info.Platform != "" {
		s.info.Platform = info.Platform
	}
	if info.StakePrecision != nil {
		s.info.StakePrecision = *info.StakePrecision
	}
	if info.MinStake.IsPositive() {
		s.info.MinStake = info.MinStake
	}
	s.info.AsyncSettlement = s.info.AsyncSettlement || info.AsyncSettlement
	return s, nil
}

func (s *Session) path(suffix string) string {
	return "/v1/profiles/" + url.PathEscape(s.profile) + suffix
}

func (s *Session) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: session closed", venue.ErrUnavailable)
	}
	return nil
}

// Info implements venue.Venue.
func (s *Session) Info() venue.Info { return s.info }

// ResolveEvent implements venue.Venue.
func (s *Session) ResolveEvent(ctx context.Context, q venue.EventQuery) (venue.EventRef, error) {
	if err := s.live(); err != nil {
		return venue.EventRef{}, err
	}
	var ev wireEvent
	err := s.c.do(ctx, http.MethodPost, s.path("/events/resolve"), eventQuery{
		Sport: q.Sport, EventID: q.EventID, HomeTeam: q.HomeTeam, AwayTeam: q.AwayTeam, League: q.League,
	}, &ev)
	if err != nil {
		return venue.EventRef{}, fmt.Errorf("bridge: resolve event: %w", err)
	}
	return toEventRef(ev), nil
}

// ListLiveEvents implements venue.Venue.
func (s *Session) ListLiveEvents(ctx context.Context, sport string) ([]venue.EventRef, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	var resp struct {
		Events []wireEvent `json:"events"`
	}
	p := s.path("/events") + "?" + url.Values{"sport": {sport}}.Encode()
	if err := s.c.do(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return nil, fmt.Errorf("bridge: list events: %w", err)
	}
	out := make([]venue.EventRef, 0, len(resp.Events))
	for _, ev := range resp.Events {
		out = append(out, toEventRef(ev))
	}
	return out, nil
}

// Quote implements venue.Venue.
func (s *Session) Quote(ctx context.Context, eventID string, m domain.Market) (venue.Quote, error) {
	if err := s.live(); err != nil {
		return venue.Quote{}, err
	}
	var q wireQuote
	p := s.path("/events/"+url.PathEscape(eventID)+"/quote") + "?" + url.Values{"market": {m.String()}}.Encode()
	if err := s.c.do(ctx, http.MethodGet, p, nil, &q); err != nil {
		return venue.Quote{}, fmt.Errorf("bridge: quote %s: %w", m, err)
	}
	market := m
	if q.Market != "" {
		parsed, err := domain.ParseMarket(q.Market)
		if err != nil {
			return venue.Quote{}, fmt.Errorf("bridge: quote market %q: %w", q.Market, err)
		}
		market = parsed
	}
	return venue.Quote{Market: market, LineID: q.LineID, Price: q.Price, MaxStake: q.MaxStake}, nil
}

// Snapshot implements venue.Venue. Offers whose label does not parse are
// skipped.
func (s *Session) Snapshot(ctx context.Context, eventID string) (venue.Snapshot, error) {
	if err := s.live(); err != nil {
		return venue.Snapshot{}, err
	}
	var b wireBoard
	if err := s.c.do(ctx, http.MethodGet, s.path("/events/"+url.PathEscape(eventID)+"/board"), nil, &b); err != nil {
		return venue.Snapshot{}, fmt.Errorf("bridge: board %s: %w", eventID, err)
	}
	snap := venue.Snapshot{EventID: b.EventID, TakenAt: b.TakenAt, Offers: make([]venue.Offer, 0, len(b.Offers))}
	if snap.EventID == "" {
		snap.EventID = eventID
	}
	for _, o := range b.Offers {
		m, err := domain.ParseMarket(o.Market)
		if err != nil {
			continue
		}
		snap.Offers = append(snap.Offers, venue.Offer{
			Market: m, LineID: o.LineID, Price: o.Price, MaxStake: o.MaxStake, Suspended: o.Suspended,
		})
	}
	return snap, nil
}

// Place implements venue.Venue.
func (s *Session) Place(ctx context.Context, req venue.PlaceRequest) (venue.Placement, error) {
	if err := s.live(); err != nil {
		return venue.Placement{}, err
	}
	var p wirePlacement
	err := s.c.do(ctx, http.MethodPost, s.path("/bets"), placeBody{
		OrderID: req.OrderID,
		EventID: req.EventID,
		Market:  req.Market.String(),
		LineID:  req.LineID,
		Price:   req.Price,
		Stake:   req.Stake,
	}, &p)
	if err != nil {
		return venue.Placement{}, fmt.Errorf("bridge: place %s: %w", req.OrderID, err)
	}
	return toPlacement(p)
}

// PlacementStatus implements venue.Venue.
func (s *Session) PlacementStatus(ctx context.Context, ticketID string) (venue.Placement, error) {
	if err := s.live(); err != nil {
		return venue.Placement{}, err
	}
	var p wirePlacement
	if err := s.c.do(ctx, http.MethodGet, s.path("/bets/"+url.PathEscape(ticketID)), nil, &p); err != nil {
		return venue.Placement{}, fmt.Errorf("bridge: bet status %s: %w", ticketID, err)
	}
	return toPlacement(p)
}

// Cancel implements venue.Venue.
func (s *Session) Cancel(ctx context.Context, ticketID string) error {
	if err := s.live(); err != nil {
		return err
	}
	if err := s.c.do(ctx, http.MethodDelete, s.path("/bets/"+url.PathEscape(ticketID)), nil, nil); err != nil {
		return fmt.Errorf("bridge: cancel %s: %w", ticketID, err)
	}
	return nil
}

// Balance implements venue.Venue.
func (s *Session) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err := s.live(); err != nil {
		return decimal.Zero, err
	}
	var b balanceResponse
	if err := s.c.do(ctx, http.MethodGet, s.path("/balance"), nil, &b); err != nil {
		return decimal.Zero, fmt.Errorf("bridge: balance: %w", err)
	}
	return b.Balance, nil
}

// Close implements venue.Venue. The sidecar profile stays up; only this
// handle is invalidated.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func toEventRef(ev wireEvent) venue.EventRef {
	return venue.EventRef{
		EventID: ev.EventID, HomeTeam: ev.HomeTeam, AwayTeam: ev.AwayTeam, League: ev.League, StartsAt: ev.StartsAt,
	}
}

func toPlacement(p wirePlacement) (venue.Placement, error) {
	state := venue.PlacementState(p.State)
	switch state {
	case venue.PlacementAccepted, venue.PlacementPending, venue.PlacementRejected:
	default:
		return venue.Placement{}, fmt.Errorf("bridge: unknown placement state %q", p.State)
	}
	return venue.Placement{
		TicketID: p.TicketID, State: state, Price: p.Price, Stake: p.Stake, Code: p.Code, Message: p.Message,
	}, nil
}

var _ venue.Venue = (*Session)(nil)
