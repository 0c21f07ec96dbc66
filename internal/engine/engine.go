// Package engine implements the betting operations against one account
// session: FetchOdds, PlaceBet, PlaceCompensatingBet, CancelBet and
// RefreshBalance. Every operation holds the session's exclusivity token for
// its venue calls, so calls for one handler never overlap.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/arbitrage"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/session"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// Options tunes the engine's fixed timings. The hot-reloadable thresholds
// come from config.Automation instead.
type Options struct {
	PendingPollAttempts   int
	PendingPollInterval   time.Duration
	RetryDelay            time.Duration
	BalanceRefreshTimeout time.Duration
	// VenueCallsPerWindow caps operations per handler through the shared
	// rate limiter. Zero disables the cap.
	VenueCallsPerWindow int
	VenueCallWindow     time.Duration
}

// DefaultOptions mirrors config.Defaults().Engine.
func DefaultOptions() Options {
	return Options{
		PendingPollAttempts:   30,
		PendingPollInterval:   time.Second,
		RetryDelay:            2 * time.Second,
		BalanceRefreshTimeout: 20 * time.Second,
		VenueCallWindow:       time.Second,
	}
}

// BalanceFunc receives every refreshed balance.
type BalanceFunc func(ctx context.Context, handler string, balance decimal.Decimal)

// Reviver rebuilds a handler's session once it has been marked broken.
// *session.Registry implements it.
type Reviver interface {
	Revive(ctx context.Context, handler string) (*session.Session, error)
}

var _ Reviver = (*session.Registry)(nil)

// Engine runs betting operations. It is safe for concurrent use across
// sessions and across orders on one session.
type Engine struct {
	automation *config.Automation
	windows    *arbitrage.Registry
	translator venue.Translator
	opts       Options

	records   domain.OrderRecordStore
	audit     domain.AuditStore
	limiter   domain.RateLimiter
	reviver   Reviver
	onBalance BalanceFunc

	logger *slog.Logger
	now    func() time.Time

	// refreshes tracks background balance refreshes.
	refreshes sync.WaitGroup
}

// New creates an Engine reading thresholds from automation.
func New(automation *config.Automation, opts Options, logger *slog.Logger) *Engine {
	def := DefaultOptions()
	if opts.PendingPollAttempts <= 0 {
		opts.PendingPollAttempts = def.PendingPollAttempts
	}
	if opts.PendingPollInterval <= 0 {
		opts.PendingPollInterval = def.PendingPollInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.BalanceRefreshTimeout <= 0 {
		opts.BalanceRefreshTimeout = def.BalanceRefreshTimeout
	}
	if opts.VenueCallWindow <= 0 {
		opts.VenueCallWindow = def.VenueCallWindow
	}
	return &Engine{
		automation: automation,
		windows:    arbitrage.DefaultRegistry(),
		translator: venue.LabelTranslator{},
		opts:       opts,
		logger:     logger.With(slog.String("component", "engine")),
		now:        time.Now,
	}
}

// SetPersistence enables best-effort persistence of record mutations and the
// audit trail. Either store may be nil.
func (e *Engine) SetPersistence(records domain.OrderRecordStore, audit domain.AuditStore) {
	e.records = records
	e.audit = audit
}

// SetRateLimiter enables the per-handler operation budget.
func (e *Engine) SetRateLimiter(l domain.RateLimiter) {
	e.limiter = l
}

// SetReviver lets long-running loops rebuild a broken session between
// iterations instead of failing on a closed venue.
func (e *Engine) SetReviver(r Reviver) {
	e.reviver = r
}

// SetTranslator replaces the raw market-id translator.
func (e *Engine) SetTranslator(t venue.Translator) {
	if t != nil {
		e.translator = t
	}
}

// SetWindows replaces the arbitrage window registry.
func (e *Engine) SetWindows(r *arbitrage.Registry) {
	if r != nil {
		e.windows = r
	}
}

// OnBalance registers the callback that republishes refreshed balances.
func (e *Engine) OnBalance(fn BalanceFunc) {
	e.onBalance = fn
}

// Wait blocks until background balance refreshes finish.
func (e *Engine) Wait() {
	e.refreshes.Wait()
}

// acquire waits for the rate limiter, if any, and then takes the session's
// token.
func (e *Engine) acquire(ctx context.Context, s *session.Session) (func(), error) {
	if e.limiter != nil && e.opts.VenueCallsPerWindow > 0 {
		key := "venue:" + s.Handler()
		if err := e.limiter.Wait(ctx, key, e.opts.VenueCallsPerWindow, e.opts.VenueCallWindow); err != nil {
			return nil, fmt.Errorf("engine: rate limit %s: %w", s.Handler(), err)
		}
	}
	return s.Acquire(ctx)
}

// withVenue runs fn while holding the session token. The token is released
// even if fn panics.
func (e *Engine) withVenue(ctx context.Context, s *session.Session, fn func(v venue.Venue) error) error {
	release, err := e.acquire(ctx, s)
	if err != nil {
		return err
	}
	defer release()
	return fn(s.Venue())
}

// venueFailure maps a venue error to a result reason and flags the session
// for rebuild when the underlying resource is gone.
func (e *Engine) venueFailure(s *session.Session, err error) string {
	switch {
	case errors.Is(err, venue.ErrEventNotFound):
		return ReasonEventNotFound
	case errors.Is(err, venue.ErrMarketNotFound), errors.Is(err, domain.ErrUnsupportedMarket):
		return ReasonMarketUnsupported
	case errors.Is(err, venue.ErrMarketSuspended):
		return ReasonMarketSuspended
	case errors.Is(err, venue.ErrTranslation):
		return ReasonTranslationFailed
	case errors.Is(err, venue.ErrRejected):
		return ReasonRejected
	case errors.Is(err, venue.ErrUnavailable):
		s.MarkBroken()
		return ReasonVenueError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	}
	return ReasonVenueError
}

func (e *Engine) persist(ctx context.Context, rec domain.OrderRecord) {
	if e.records == nil {
		return
	}
	if err := e.records.Upsert(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "persist order record failed",
			slog.String("order_id", rec.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// sleep waits for d or until ctx ends. It reports false when ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
