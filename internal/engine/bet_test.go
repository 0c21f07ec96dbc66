package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

func TestPlaceBetClampsToBalance(t *testing.T) {
	v := newFakeVenue()
	v.balance = dec("50.555")
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))

	var mu sync.Mutex
	var published []decimal.Decimal
	e.OnBalance(func(_ context.Context, handler string, bal decimal.Decimal) {
		mu.Lock()
		published = append(published, bal)
		mu.Unlock()
	})

	s := newTestSession(t, "pin888", v)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", Market: totalMarket(domain.SideOver, "2.5"), LineID: "L-1", Price: dec("1.95")})

	res := e.PlaceBet(context.Background(), s, "o1", dec("100"))
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, "T-o1", res.TicketID)
	assert.True(t, res.Stake.Equal(dec("50.55")), res.Stake.String())

	placed := v.placements()
	require.Len(t, placed, 1)
	assert.Equal(t, "L-1", placed[0].LineID)
	assert.True(t, placed[0].Stake.Equal(dec("50.55")))

	rec, _ := s.Records().Get("o1")
	assert.Equal(t, domain.RecordPlaced, rec.Status)
	assert.Equal(t, "T-o1", rec.TicketID)

	e.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, published, 1)
	assert.True(t, published[0].Equal(dec("50.555")))
}

func TestPlaceBetRespectsMaxStake(t *testing.T) {
	v := newFakeVenue()
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "pin888", v)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", Price: dec("2"), MaxStake: dec("20")})

	res := e.PlaceBet(context.Background(), s, "o1", dec("100"))
	require.True(t, res.Success)
	assert.True(t, res.Stake.Equal(dec("20")))
}

func TestPlaceBetPollsPending(t *testing.T) {
	v := newFakeVenue()
	v.place = func(req venue.PlaceRequest) (venue.Placement, error) {
		return venue.Placement{TicketID: "P-1", State: venue.PlacementPending}, nil
	}
	v.statuses = []venue.Placement{
		{State: venue.PlacementPending},
		{TicketID: "P-1", State: venue.PlacementAccepted, Price: dec("1.93"), Stake: dec("10")},
	}
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "pin888", v)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", Price: dec("1.95")})

	res := e.PlaceBet(context.Background(), s, "o1", dec("10"))
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, "P-1", res.TicketID)
	assert.True(t, res.Price.Equal(dec("1.93")))
	assert.Equal(t, 2, v.count("PlacementStatus"))

	rec, _ := s.Records().Get("o1")
	assert.True(t, rec.Price.Equal(dec("1.93")))
}

func TestPlaceBetPendingUnresolved(t *testing.T) {
	v := newFakeVenue()
	v.place = func(req venue.PlaceRequest) (venue.Placement, error) {
		return venue.Placement{TicketID: "P-1", State: venue.PlacementPending}, nil
	}
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "pin888", v)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", Price: dec("1.95")})

	res := e.PlaceBet(context.Background(), s, "o1", dec("10"))
	assert.False(t, res.Success)
	assert.Equal(t, ReasonPendingUnresolved, res.Reason)
	assert.Equal(t, testOptions().PendingPollAttempts, v.count("PlacementStatus"))

	rec, _ := s.Records().Get("o1")
	assert.Equal(t, domain.RecordOpen, rec.Status)
}

func TestPlaceBetFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(v *fakeVenue)
		orderID string
		reason  string
		places  int
	}{
		{
			name:    "missing record",
			orderID: "missing",
			reason:  ReasonRecordNotFound,
		},
		{
			name:    "empty balance",
			setup:   func(v *fakeVenue) { v.balance = decimal.Zero },
			orderID: "o1",
			reason:  ReasonInsufficientBalance,
		},
		{
			name: "below minimum stake",
			setup: func(v *fakeVenue) {
				v.balance = dec("3")
				v.info.MinStake = dec("5")
			},
			orderID: "o1",
			reason:  ReasonInsufficientBalance,
		},
		{
			name: "explicit rejection",
			setup: func(v *fakeVenue) {
				v.place = func(venue.PlaceRequest) (venue.Placement, error) {
					return venue.Placement{State: venue.PlacementRejected, Code: "ODDS_CHANGED"}, nil
				}
			},
			orderID: "o1",
			reason:  ReasonRejected,
			places:  1,
		},
		{
			name: "rejection error",
			setup: func(v *fakeVenue) {
				v.place = func(venue.PlaceRequest) (venue.Placement, error) {
					return venue.Placement{}, venue.ErrRejected
				}
			},
			orderID: "o1",
			reason:  ReasonRejected,
			places:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newFakeVenue()
			if tt.setup != nil {
				tt.setup(v)
			}
			e := newTestEngine(t, testAutomation(t, 10, 900, 3))
			s := newTestSession(t, "pin888", v)
			putRecord(t, s, domain.OrderRecord{OrderID: "o1", Price: dec("1.9")})

			res := e.PlaceBet(context.Background(), s, tt.orderID, dec("10"))
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.places, v.count("Place"))

			rec, _ := s.Records().Get("o1")
			assert.Equal(t, domain.RecordOpen, rec.Status)
		})
	}
}

func TestPlaceBetUnavailableMarksSessionBroken(t *testing.T) {
	v := newFakeVenue()
	v.place = func(venue.PlaceRequest) (venue.Placement, error) {
		return venue.Placement{}, venue.ErrUnavailable
	}
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "pin888", v)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", Price: dec("1.9")})

	res := e.PlaceBet(context.Background(), s, "o1", dec("10"))
	assert.Equal(t, ReasonVenueError, res.Reason)
	assert.True(t, s.Broken())
}

func TestCancelBet(t *testing.T) {
	v := newFakeVenue()
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "pin888", v)
	ctx := context.Background()

	res := e.CancelBet(ctx, s, "missing")
	assert.False(t, res.Success)
	assert.Equal(t, ReasonRecordNotFound, res.Reason)

	putRecord(t, s, domain.OrderRecord{OrderID: "open"})
	res = e.CancelBet(ctx, s, "open")
	assert.False(t, res.Success)
	assert.Equal(t, ReasonTicketNotFound, res.Reason)
	assert.Equal(t, 0, v.count("Cancel"))

	putRecord(t, s, domain.OrderRecord{OrderID: "placed", Status: domain.RecordPlaced, TicketID: "T-9"})
	res = e.CancelBet(ctx, s, "placed")
	assert.True(t, res.Success)
	assert.Equal(t, "T-9", res.TicketID)
	assert.Equal(t, 1, v.count("Cancel"))

	v.set(func(v *fakeVenue) { v.cancelErr = venue.ErrRejected })
	res = e.CancelBet(ctx, s, "placed")
	assert.False(t, res.Success)
	assert.Equal(t, ReasonRejected, res.Reason)
}

func TestRefreshBalance(t *testing.T) {
	v := newFakeVenue()
	v.balance = dec("321.5")
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "pin888", v)

	var got decimal.Decimal
	e.OnBalance(func(_ context.Context, _ string, bal decimal.Decimal) { got = bal })

	bal, err := e.RefreshBalance(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("321.5")))
	assert.True(t, s.Balance().Equal(dec("321.5")))
	assert.True(t, got.Equal(dec("321.5")))
}
