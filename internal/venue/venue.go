// Package venue defines the narrow capability surface the engine needs from
// a bookmaker session. Concrete venues live under internal/platform.
package venue

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var (
	ErrEventNotFound   = errors.New("venue: event not found")
	ErrMarketSuspended = errors.New("venue: market suspended")
	ErrMarketNotFound  = errors.New("venue: market not offered")
	ErrNeedRefresh     = errors.New("venue: snapshot needs refresh")
	ErrTranslation     = errors.New("venue: translation failed")
	ErrRejected        = errors.New("venue: bet rejected")
	ErrUnavailable     = errors.New("venue: unavailable")
)

// Descriptor identifies the live resource backing an account session. A
// change in any field means the session must be rebuilt.
type Descriptor struct {
	Platform  string `json:"platform"`
	Endpoint  string `json:"endpoint"`
	ProfileID string `json:"profile_id"`
	Account   string `json:"account"`
}

// Info describes static venue properties.
type Info struct {
	Platform string
	// StakePrecision is the number of decimal places a stake may carry.
	StakePrecision int32
	MinStake       decimal.Decimal
	// AsyncSettlement venues confirm bets after placement returns.
	AsyncSettlement bool
}

// EventQuery carries what the dispatcher knows about an event.
type EventQuery struct {
	Sport    string
	EventID  string
	HomeTeam string
	AwayTeam string
	League   string
}

// EventRef is a resolved live event.
type EventRef struct {
	EventID  string
	HomeTeam string
	AwayTeam string
	League   string
	StartsAt time.Time
}

// Quote is a live tradeable price for one market.
type Quote struct {
	Market   domain.Market
	LineID   string
	Price    decimal.Decimal
	MaxStake decimal.Decimal
}

// Offer is one priced entry in a raw odds snapshot.
type Offer struct {
	Market    domain.Market
	LineID    string
	Price     decimal.Decimal
	MaxStake  decimal.Decimal
	Suspended bool
}

// Snapshot is the venue's full odds board for one event.
type Snapshot struct {
	EventID string
	Offers  []Offer
	TakenAt time.Time
}

// PlaceRequest submits one bet.
type PlaceRequest struct {
	OrderID string
	EventID string
	Market  domain.Market
	LineID  string
	Price   decimal.Decimal
	Stake   decimal.Decimal
}

// PlacementState is the venue-side bet status.
type PlacementState string

const (
	PlacementAccepted PlacementState = "accepted"
	PlacementPending  PlacementState = "pending"
	PlacementRejected PlacementState = "rejected"
)

// Placement is the venue's answer to a PlaceRequest or a status poll.
type Placement struct {
	TicketID string
	State    PlacementState
	Price    decimal.Decimal
	Stake    decimal.Decimal
	Code     string
	Message  string
}

// Venue is one authenticated bookmaker session. Implementations need not be
// safe for concurrent use; the engine serializes calls per session.
type Venue interface {
	Info() Info
	ResolveEvent(ctx context.Context, q EventQuery) (EventRef, error)
	ListLiveEvents(ctx context.Context, sport string) ([]EventRef, error)
	Quote(ctx context.Context, eventID string, m domain.Market) (Quote, error)
	Snapshot(ctx context.Context, eventID string) (Snapshot, error)
	Place(ctx context.Context, req PlaceRequest) (Placement, error)
	PlacementStatus(ctx context.Context, ticketID string) (Placement, error)
	Cancel(ctx context.Context, ticketID string) error
	Balance(ctx context.Context) (decimal.Decimal, error)
	Close() error
}

// Translator maps a venue's raw market identifier to the normalized
// descriptor.
type Translator interface {
	Translate(ctx context.Context, sport, rawMarketID, parameter string) (domain.Market, error)
}

// Dialer opens a venue for a handler's descriptor.
type Dialer interface {
	Dial(ctx context.Context, handler string, d Descriptor) (Venue, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, handler string, d Descriptor) (Venue, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, handler string, d Descriptor) (Venue, error) {
	return f(ctx, handler, d)
}
