package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/session"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// overlap records the highest number of concurrent calls it has seen.
type overlap struct {
	cur, max atomic.Int32
}

func (o *overlap) enter() func() {
	n := o.cur.Add(1)
	for {
		m := o.max.Load()
		if n <= m || o.max.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { o.cur.Add(-1) }
}

// fakeVenue is a scripted venue. Zero values give an empty, always-failing
// bookmaker with a balance of zero.
type fakeVenue struct {
	mu sync.Mutex

	info      venue.Info
	direct    map[string]venue.EventRef
	live      []venue.EventRef
	quotes    map[string]venue.Quote
	quoteErr  error
	snapshot  venue.Snapshot
	snapErr   error
	place     func(req venue.PlaceRequest) (venue.Placement, error)
	statuses  []venue.Placement
	balance   decimal.Decimal
	cancelErr error

	calls   map[string]int
	placed  []venue.PlaceRequest
	snapped []string

	delay  time.Duration
	local  overlap
	global *overlap
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		info:    venue.Info{Platform: "fake", StakePrecision: 2},
		direct:  make(map[string]venue.EventRef),
		quotes:  make(map[string]venue.Quote),
		balance: decimal.NewFromInt(1000),
		calls:   make(map[string]int),
	}
}

func (v *fakeVenue) enter(op string) func() {
	v.mu.Lock()
	v.calls[op]++
	v.mu.Unlock()

	exitLocal := v.local.enter()
	exitGlobal := func() {}
	if v.global != nil {
		exitGlobal = v.global.enter()
	}
	if v.delay > 0 {
		time.Sleep(v.delay)
	}
	return func() {
		exitGlobal()
		exitLocal()
	}
}

func (v *fakeVenue) count(op string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[op]
}

func (v *fakeVenue) placements() []venue.PlaceRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]venue.PlaceRequest(nil), v.placed...)
}

func (v *fakeVenue) snapshotIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.snapped...)
}

func (v *fakeVenue) set(fn func(v *fakeVenue)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(v)
}

func (v *fakeVenue) Info() venue.Info {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.info
}

func (v *fakeVenue) ResolveEvent(_ context.Context, q venue.EventQuery) (venue.EventRef, error) {
	defer v.enter("ResolveEvent")()
	v.mu.Lock()
	defer v.mu.Unlock()
	if ev, ok := v.direct[q.EventID]; ok {
		return ev, nil
	}
	return venue.EventRef{}, venue.ErrEventNotFound
}

func (v *fakeVenue) ListLiveEvents(context.Context, string) ([]venue.EventRef, error) {
	defer v.enter("ListLiveEvents")()
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]venue.EventRef(nil), v.live...), nil
}

func (v *fakeVenue) Quote(_ context.Context, _ string, m domain.Market) (venue.Quote, error) {
	defer v.enter("Quote")()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.quoteErr != nil {
		return venue.Quote{}, v.quoteErr
	}
	q, ok := v.quotes[m.String()]
	if !ok {
		return venue.Quote{}, venue.ErrMarketNotFound
	}
	return q, nil
}

func (v *fakeVenue) Snapshot(_ context.Context, eventID string) (venue.Snapshot, error) {
	defer v.enter("Snapshot")()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.snapped = append(v.snapped, eventID)
	if v.snapErr != nil {
		return venue.Snapshot{}, v.snapErr
	}
	snap := v.snapshot
	snap.EventID = eventID
	snap.Offers = append([]venue.Offer(nil), v.snapshot.Offers...)
	return snap, nil
}

func (v *fakeVenue) Place(_ context.Context, req venue.PlaceRequest) (venue.Placement, error) {
	defer v.enter("Place")()
	v.mu.Lock()
	v.placed = append(v.placed, req)
	fn := v.place
	v.mu.Unlock()
	if fn == nil {
		return venue.Placement{TicketID: "T-" + req.OrderID, State: venue.PlacementAccepted, Price: req.Price, Stake: req.Stake}, nil
	}
	return fn(req)
}

func (v *fakeVenue) PlacementStatus(_ context.Context, ticketID string) (venue.Placement, error) {
	defer v.enter("PlacementStatus")()
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.statuses) == 0 {
		return venue.Placement{TicketID: ticketID, State: venue.PlacementPending}, nil
	}
	p := v.statuses[0]
	if len(v.statuses) > 1 {
		v.statuses = v.statuses[1:]
	}
	return p, nil
}

func (v *fakeVenue) Cancel(context.Context, string) error {
	defer v.enter("Cancel")()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancelErr
}

func (v *fakeVenue) Balance(context.Context) (decimal.Decimal, error) {
	defer v.enter("Balance")()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

func (v *fakeVenue) Close() error { return nil }

var _ venue.Venue = (*fakeVenue)(nil)

func testOptions() Options {
	return Options{
		PendingPollAttempts:   3,
		PendingPollInterval:   5 * time.Millisecond,
		RetryDelay:            10 * time.Millisecond,
		BalanceRefreshTimeout: time.Second,
	}
}

func testAutomation(t *testing.T, threshold, timeoutSec float64, maxRetries int) *config.Automation {
	t.Helper()
	a, err := config.NewAutomation(config.AutomationConfig{
		OddsDropThresholdPct:    threshold,
		SupplementaryTimeoutSec: timeoutSec,
		MaxRetryCount:           maxRetries,
	})
	require.NoError(t, err)
	return a
}

func newTestEngine(t *testing.T, auto *config.Automation) *Engine {
	t.Helper()
	e := New(auto, testOptions(), discardLogger())
	t.Cleanup(e.Wait)
	return e
}

func newTestSession(t *testing.T, handler string, v *fakeVenue) *session.Session {
	t.Helper()
	dialer := venue.DialerFunc(func(context.Context, string, venue.Descriptor) (venue.Venue, error) {
		return v, nil
	})
	reg := session.NewRegistry(dialer, session.RegistryConfig{}, discardLogger())
	s, err := reg.Ensure(context.Background(), handler, venue.Descriptor{Platform: "fake", Endpoint: "mem://" + handler})
	require.NoError(t, err)
	return s
}

// putRecord seeds an open record as FetchOdds would have left it.
func putRecord(t *testing.T, s *session.Session, rec domain.OrderRecord) {
	t.Helper()
	if rec.Handler == "" {
		rec.Handler = s.Handler()
	}
	if rec.EventID == "" {
		rec.EventID = "ev-1"
	}
	_, err := s.Records().Put(rec)
	require.NoError(t, err)
}

func totalMarket(side domain.Side, line string) domain.Market {
	return domain.NewTotal(side, dec(line))
}
