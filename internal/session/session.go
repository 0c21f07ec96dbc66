// Package session owns account sessions: one bookmaker credential bound to
// one live venue resource, with its balance, order records, cancellation
// flag and exclusivity token.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// lockRetryInterval is how often a held cross-process lock is re-tried.
const lockRetryInterval = 50 * time.Millisecond

// lineage links a session to every session that replaced it. Holders of an
// older *Session reach the live venue through it.
type lineage struct {
	current     atomic.Pointer[Session]
	deactivated atomic.Bool
}

// Session is one account session. Venue calls must be made while holding
// the token returned by Acquire.
type Session struct {
	handler string
	desc    venue.Descriptor
	venue   venue.Venue
	link    *lineage

	// token is shared with any session that replaces this one so that a
	// rebuild never lets two venue calls overlap for the same handler.
	token   chan struct{}
	locker  domain.LockManager
	lockTTL time.Duration

	mu        sync.RWMutex
	balance   decimal.Decimal
	balanceAt time.Time

	records   *RecordStore
	cancel    *atomic.Bool
	broken    atomic.Bool
	createdAt time.Time
	logger    *slog.Logger
}

// Handler returns the stable handler name.
func (s *Session) Handler() string { return s.handler }

// Descriptor returns the connection descriptor the session was built from.
func (s *Session) Descriptor() venue.Descriptor { return s.desc }

// Current returns the live session for the handler: s itself, or the
// session that replaced it after a rebuild.
func (s *Session) Current() *Session {
	if s.link == nil {
		return s
	}
	if cur := s.link.current.Load(); cur != nil {
		return cur
	}
	return s
}

// Venue returns the live venue handle, following rebuilds. Callers must hold
// the token.
func (s *Session) Venue() venue.Venue { return s.Current().venue }

// Deactivated reports whether the handler was torn down. A deactivated
// session is never revived; a later activation builds a new lineage.
func (s *Session) Deactivated() bool {
	return s.link != nil && s.link.deactivated.Load()
}

// Records returns the session's order records.
func (s *Session) Records() *RecordStore { return s.records }

// Acquire takes the session's exclusivity token, waiting until it is free or
// ctx ends. When a lock manager is configured the handler is also locked
// across processes. The returned release func is idempotent.
func (s *Session) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.token <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("session: acquire %s: %w", s.handler, ctx.Err())
	}

	unlock := func() {}
	if s.locker != nil {
		u, err := s.lockRemote(ctx)
		if err != nil {
			<-s.token
			return nil, err
		}
		unlock = u
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlock()
			<-s.token
		})
	}, nil
}

func (s *Session) lockRemote(ctx context.Context) (func(), error) {
	key := "session:" + s.handler
	for {
		unlock, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("session: lock %s: %w", s.handler, err)
		}
		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("session: lock %s: %w", s.handler, ctx.Err())
		case <-timer.C:
		}
	}
}

// Balance returns the last known balance.
func (s *Session) Balance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// BalanceAt returns when the balance was last set.
func (s *Session) BalanceAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceAt
}

// SetBalance stores a refreshed balance.
func (s *Session) SetBalance(b decimal.Decimal) {
	s.mu.Lock()
	s.balance = b
	s.balanceAt = time.Now()
	s.mu.Unlock()
}

// RequestCancel raises the cancellation flag. The next compensating-loop
// iteration on this session observes it and stops.
func (s *Session) RequestCancel() {
	s.cancel.Store(true)
}

// ConsumeCancel reports whether cancellation was requested and clears the
// flag in the same step.
func (s *Session) ConsumeCancel() bool {
	return s.cancel.CompareAndSwap(true, false)
}

// CancelRequested reports the flag without clearing it.
func (s *Session) CancelRequested() bool {
	return s.cancel.Load()
}

// MarkBroken flags the live venue resource as unusable; the registry
// rebuilds the session on the next Ensure.
func (s *Session) MarkBroken() {
	cur := s.Current()
	if cur.broken.CompareAndSwap(false, true) {
		cur.logger.Warn("session marked broken", slog.String("handler", cur.handler))
	}
}

// Broken reports whether the live session must be rebuilt.
func (s *Session) Broken() bool {
	return s.Current().broken.Load()
}

// Info is a point-in-time view of a session for the admin API.
type Info struct {
	Handler         string          `json:"handler"`
	Platform        string          `json:"platform"`
	Endpoint        string          `json:"endpoint"`
	Balance         decimal.Decimal `json:"balance"`
	BalanceAt       time.Time       `json:"balance_at"`
	Records         int             `json:"records"`
	CancelRequested bool            `json:"cancel_requested"`
	Broken          bool            `json:"broken"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	bal, at := s.balance, s.balanceAt
	s.mu.RUnlock()
	return Info{
		Handler:         s.handler,
		Platform:        s.desc.Platform,
		Endpoint:        s.desc.Endpoint,
		Balance:         bal,
		BalanceAt:       at,
		Records:         s.records.Len(),
		CancelRequested: s.cancel.Load(),
		Broken:          s.broken.Load(),
		CreatedAt:       s.createdAt,
	}
}
