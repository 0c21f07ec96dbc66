package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/session"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// newRegistrySession dials venues in order, one per build, and repeats the
// last one once they run out.
func newRegistrySession(t *testing.T, handler string, venues ...*fakeVenue) (*session.Registry, *session.Session) {
	t.Helper()
	var dials atomic.Int32
	dialer := venue.DialerFunc(func(context.Context, string, venue.Descriptor) (venue.Venue, error) {
		i := int(dials.Add(1)) - 1
		if i >= len(venues) {
			i = len(venues) - 1
		}
		return venues[i], nil
	})
	reg := session.NewRegistry(dialer, session.RegistryConfig{}, discardLogger())
	s, err := reg.Ensure(context.Background(), handler, venue.Descriptor{Platform: "fake", Endpoint: "mem://" + handler})
	require.NoError(t, err)
	return reg, s
}

func TestCompensatingContinuesOnRebuiltSession(t *testing.T) {
	dead := newFakeVenue()
	dead.snapErr = venue.ErrUnavailable
	fresh := newFakeVenue()
	fresh.snapshot = venue.Snapshot{Offers: []venue.Offer{offer(totalMarket(domain.SideUnder, "2.5"), "U-2.5", "2.0")}}

	reg, s := newRegistrySession(t, "sbo", dead, fresh)
	e := newTestEngine(t, testAutomation(t, 10, 900, 5))
	e.SetReviver(reg)
	putRecord(t, s, domain.OrderRecord{
		OrderID:        "o1",
		Market:         totalMarket(domain.SideUnder, "2.5"),
		ReferencePrice: dec("2.0"),
		Stake:          dec("10"),
		RemainingSec:   60,
	})

	res := e.PlaceCompensatingBet(context.Background(), s, "o1", OpponentLeg{Market: totalMarket(domain.SideOver, "2.5")})

	require.Equal(t, OutcomeAccepted, res.Outcome, res.Reason)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 1, dead.count("Snapshot"))
	assert.Equal(t, 0, dead.count("Place"))
	assert.GreaterOrEqual(t, fresh.count("Snapshot"), 1)
	assert.Equal(t, 1, fresh.count("Place"))

	assert.NotSame(t, s, s.Current())
	assert.Same(t, s.Current(), reg.Get("sbo"))
	rec, ok := reg.Get("sbo").Records().Get("o1")
	require.True(t, ok)
	assert.Equal(t, domain.RecordPlaced, rec.Status)
}

func TestCompensatingStopsWhenSessionDeactivated(t *testing.T) {
	v := newFakeVenue()
	v.snapErr = venue.ErrNeedRefresh
	reg, s := newRegistrySession(t, "sbo", v)
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	e.SetReviver(reg)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", ReferencePrice: dec("2.0"), RemainingSec: 60})

	done := make(chan CompensationResult, 1)
	go func() {
		done <- e.PlaceCompensatingBet(context.Background(), s, "o1", OpponentLeg{Market: totalMarket(domain.SideOver, "2.5")})
	}()

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, reg.Deactivate("sbo"))

	select {
	case res := <-done:
		assert.Equal(t, OutcomeCancelled, res.Outcome)
		assert.Equal(t, ReasonSessionDeactivated, res.Reason)
	case <-time.After(time.Second):
		t.Fatal("loop kept running on a deactivated session")
	}

	calls := v.count("Snapshot")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, v.count("Snapshot"))

	rec, _ := s.Records().Get("o1")
	assert.Equal(t, domain.RecordCancelled, rec.Status)
}

func TestCompensatingHoldsPendingTicket(t *testing.T) {
	v := newFakeVenue()
	v.snapshot = venue.Snapshot{Offers: []venue.Offer{offer(totalMarket(domain.SideUnder, "2.5"), "U", "2.0")}}
	v.place = func(venue.PlaceRequest) (venue.Placement, error) {
		return venue.Placement{TicketID: "P-1", State: venue.PlacementPending}, nil
	}
	e := newTestEngine(t, testAutomation(t, 10, 1, 2))
	s := newTestSession(t, "sbo", v)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", ReferencePrice: dec("2.0"), Stake: dec("10")})

	res := e.PlaceCompensatingBet(context.Background(), s, "o1", OpponentLeg{Market: totalMarket(domain.SideOver, "2.5")})

	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.Equal(t, "P-1", res.TicketID)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 0, res.Retries)
	assert.Equal(t, 1, v.count("Place"), "a pending ticket is never resubmitted")
	assert.Greater(t, v.count("PlacementStatus"), testOptions().PendingPollAttempts)

	rec, _ := s.Records().Get("o1")
	assert.Equal(t, domain.RecordTimedOut, rec.Status)
	assert.Equal(t, "P-1", rec.TicketID)
}

func TestCompensatingPendingTicketSettlesLater(t *testing.T) {
	v := newFakeVenue()
	v.snapshot = venue.Snapshot{Offers: []venue.Offer{offer(totalMarket(domain.SideUnder, "2.5"), "U", "2.0")}}
	v.place = func(venue.PlaceRequest) (venue.Placement, error) {
		return venue.Placement{TicketID: "P-2", State: venue.PlacementPending}, nil
	}
	e := newTestEngine(t, testAutomation(t, 10, 900, 2))
	s := newTestSession(t, "sbo", v)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", ReferencePrice: dec("2.0"), Stake: dec("10"), RemainingSec: 60})

	done := make(chan CompensationResult, 1)
	go func() {
		done <- e.PlaceCompensatingBet(context.Background(), s, "o1", OpponentLeg{Market: totalMarket(domain.SideOver, "2.5")})
	}()

	time.Sleep(80 * time.Millisecond)
	v.set(func(v *fakeVenue) {
		v.statuses = []venue.Placement{{TicketID: "P-2", State: venue.PlacementAccepted, Price: dec("2.0"), Stake: dec("10")}}
	})

	select {
	case res := <-done:
		require.Equal(t, OutcomeAccepted, res.Outcome, res.Reason)
		assert.Equal(t, "P-2", res.TicketID)
		assert.Equal(t, 1, res.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("loop never picked up the settled ticket")
	}
	assert.Equal(t, 1, v.count("Place"))

	rec, _ := s.Records().Get("o1")
	assert.Equal(t, domain.RecordPlaced, rec.Status)
	assert.Equal(t, "P-2", rec.TicketID)
}

func TestCompensatingFollowsMovedEvent(t *testing.T) {
	v := newFakeVenue()
	v.direct["ev-old"] = venue.EventRef{EventID: "ev-old", HomeTeam: "Arsenal", AwayTeam: "Chelsea"}
	// 2.0 -> 1.5 is held back at 10%.
	v.snapshot = venue.Snapshot{Offers: []venue.Offer{offer(totalMarket(domain.SideUnder, "2.5"), "U", "1.5")}}
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "sbo", v)
	putRecord(t, s, domain.OrderRecord{
		OrderID:        "o1",
		EventID:        "ev-old",
		Event:          domain.EventKey{Sport: "soccer", HomeTeam: "Arsenal", AwayTeam: "Chelsea"},
		ReferencePrice: dec("2.0"),
		Stake:          dec("10"),
		RemainingSec:   60,
	})

	done := make(chan CompensationResult, 1)
	go func() {
		done <- e.PlaceCompensatingBet(context.Background(), s, "o1", OpponentLeg{Market: totalMarket(domain.SideOver, "2.5")})
	}()

	time.Sleep(40 * time.Millisecond)
	v.set(func(v *fakeVenue) {
		v.direct = map[string]venue.EventRef{}
		v.live = []venue.EventRef{{EventID: "ev-new", HomeTeam: "Arsenal", AwayTeam: "Chelsea"}}
		v.snapshot = venue.Snapshot{Offers: []venue.Offer{offer(totalMarket(domain.SideUnder, "2.5"), "U", "2.0")}}
	})

	select {
	case res := <-done:
		require.Equal(t, OutcomeAccepted, res.Outcome, res.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("loop never followed the moved event")
	}

	ids := v.snapshotIDs()
	require.NotEmpty(t, ids)
	assert.Equal(t, "ev-old", ids[0])
	assert.Equal(t, "ev-new", ids[len(ids)-1])

	placed := v.placements()
	require.Len(t, placed, 1)
	assert.Equal(t, "ev-new", placed[0].EventID)

	rec, _ := s.Records().Get("o1")
	assert.Equal(t, "ev-new", rec.EventID)
}
