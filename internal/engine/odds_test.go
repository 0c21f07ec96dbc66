package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

func TestFetchOddsCreatesRecord(t *testing.T) {
	v := newFakeVenue()
	v.direct["ev-1"] = venue.EventRef{EventID: "ev-1", HomeTeam: "Arsenal", AwayTeam: "Chelsea"}
	over := totalMarket(domain.SideOver, "2.5")
	v.quotes[over.String()] = venue.Quote{Market: over, LineID: "L-1", Price: dec("1.95"), MaxStake: dec("500")}

	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "pin888", v)

	res := e.FetchOdds(context.Background(), s, OddsRequest{
		OrderID:      "o1",
		EventID:      "ev-1",
		MarketLabel:  "Total Over(%s)",
		Parameter:    "2.5",
		Stake:        dec("100"),
		RemainingSec: 600,
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "ev-1", res.EventID)
	assert.Equal(t, "L-1", res.LineID)
	assert.True(t, res.Price.Equal(dec("1.95")))

	rec, ok := s.Records().Get("o1")
	require.True(t, ok)
	assert.Equal(t, domain.RecordOpen, rec.Status)
	assert.True(t, rec.ReferencePrice.Equal(dec("1.95")))
	assert.Equal(t, 600, rec.RemainingSec)
	assert.Equal(t, "fake", rec.Platform)

	// A second fetch refreshes the price but keeps the reference.
	v.set(func(v *fakeVenue) {
		v.quotes[over.String()] = venue.Quote{Market: over, LineID: "L-2", Price: dec("1.90")}
	})
	res = e.FetchOdds(context.Background(), s, OddsRequest{
		OrderID: "o1", EventID: "ev-1", MarketLabel: "Total Over(2.5)",
	})
	require.True(t, res.Success)
	rec, _ = s.Records().Get("o1")
	assert.True(t, rec.Price.Equal(dec("1.90")))
	assert.True(t, rec.ReferencePrice.Equal(dec("1.95")))
	assert.Equal(t, "L-2", rec.LineID)
	assert.True(t, rec.Stake.Equal(dec("100")))
}

func TestFetchOddsFallsBackToTeamMatch(t *testing.T) {
	v := newFakeVenue()
	v.live = []venue.EventRef{
		{EventID: "ev-9", HomeTeam: "Liverpool", AwayTeam: "Everton"},
		{EventID: "ev-7", HomeTeam: "Manchester United", AwayTeam: "Chelsea FC"},
	}
	h := domain.NewHandicap(domain.SideHome, dec("-0.5"))
	v.quotes[h.String()] = venue.Quote{Market: h, LineID: "H-1", Price: dec("2.01")}

	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "sbo", v)

	res := e.FetchOdds(context.Background(), s, OddsRequest{
		OrderID:     "o2",
		EventID:     "stale-id",
		HomeTeam:    "Manchester United",
		AwayTeam:    "Chelsea",
		MarketLabel: "Asian Handicap1(%s)",
		Parameter:   "-0.5",
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "ev-7", res.EventID)
	assert.Equal(t, 1, v.count("ResolveEvent"))
	assert.Equal(t, 1, v.count("ListLiveEvents"))
}

func TestFetchOddsFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(v *fakeVenue)
		req    OddsRequest
		reason string
	}{
		{
			name:   "missing order id",
			req:    OddsRequest{EventID: "ev-1", MarketLabel: "Total Over(2.5)"},
			reason: ReasonInvalidRequest,
		},
		{
			name:   "no market",
			req:    OddsRequest{OrderID: "o", EventID: "ev-1"},
			reason: ReasonTranslationFailed,
		},
		{
			name:   "unknown event without teams",
			req:    OddsRequest{OrderID: "o", EventID: "nope", MarketLabel: "Total Over(2.5)"},
			reason: ReasonEventNotFound,
		},
		{
			name:   "market not offered",
			req:    OddsRequest{OrderID: "o", EventID: "ev-1", MarketLabel: "Total Over(4.5)"},
			reason: ReasonMarketUnsupported,
		},
		{
			name:   "market suspended",
			setup:  func(v *fakeVenue) { v.quoteErr = venue.ErrMarketSuspended },
			req:    OddsRequest{OrderID: "o", EventID: "ev-1", MarketLabel: "Total Over(2.5)"},
			reason: ReasonMarketSuspended,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newFakeVenue()
			v.direct["ev-1"] = venue.EventRef{EventID: "ev-1"}
			over := totalMarket(domain.SideOver, "2.5")
			v.quotes[over.String()] = venue.Quote{Market: over, Price: dec("1.9")}
			if tt.setup != nil {
				tt.setup(v)
			}
			e := newTestEngine(t, testAutomation(t, 10, 900, 3))
			s := newTestSession(t, "pin888", v)

			res := e.FetchOdds(context.Background(), s, tt.req)
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, 0, s.Records().Len())
		})
	}
}

func TestFetchOddsRejectsFinalRecord(t *testing.T) {
	v := newFakeVenue()
	e := newTestEngine(t, testAutomation(t, 10, 900, 3))
	s := newTestSession(t, "pin888", v)
	putRecord(t, s, domain.OrderRecord{OrderID: "o1", Status: domain.RecordPlaced, TicketID: "T"})

	res := e.FetchOdds(context.Background(), s, OddsRequest{OrderID: "o1", EventID: "ev-1", MarketLabel: "Total Over(2.5)"})
	assert.False(t, res.Success)
	assert.Equal(t, ReasonRecordFinal, res.Reason)
	assert.Equal(t, 0, v.count("Quote"))
}
