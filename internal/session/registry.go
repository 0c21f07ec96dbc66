package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// retireTimeout bounds how long a replaced venue waits for in-flight calls
// before it is closed anyway.
const retireTimeout = 2 * time.Minute

// RegistryConfig holds optional registry collaborators.
type RegistryConfig struct {
	// Locker, when set, extends each session's token across processes.
	Locker  domain.LockManager
	LockTTL time.Duration
}

// Registry is the process-wide handler -> session map. Sessions are built
// lazily and concurrent builds for one handler are collapsed into one.
type Registry struct {
	dialer venue.Dialer
	cfg    RegistryConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group
}

// NewRegistry creates a Registry that opens venues through dialer.
func NewRegistry(dialer venue.Dialer, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Registry{
		dialer:   dialer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "session_registry")),
		sessions: make(map[string]*Session),
	}
}

// Get returns the live session for handler, or nil.
func (r *Registry) Get(handler string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[handler]
}

// Ensure returns a usable session for handler, building one if none exists.
// A session whose descriptor changed or whose resource is broken is rebuilt;
// the replacement keeps the balance, order records, cancellation flag and
// exclusivity token of the old one.
func (r *Registry) Ensure(ctx context.Context, handler string, desc venue.Descriptor) (*Session, error) {
	if handler == "" {
		return nil, fmt.Errorf("session: ensure: empty handler")
	}
	if s := r.Get(handler); s != nil && !s.Broken() && s.desc == desc {
		return s, nil
	}

	v, err, _ := r.group.Do(handler, func() (any, error) {
		old := r.Get(handler)
		if old != nil && !old.Broken() && old.desc == desc {
			return old, nil
		}
		wasBroken := old != nil && old.Broken()

		vn, err := r.dialer.Dial(ctx, handler, desc)
		if err != nil {
			return nil, fmt.Errorf("session: dial %s: %w", handler, err)
		}
		s := r.build(handler, desc, vn, old)

		r.mu.Lock()
		r.sessions[handler] = s
		s.link.current.Store(s)
		r.mu.Unlock()

		if old != nil {
			r.logger.Info("session rebuilt",
				slog.String("handler", handler),
				slog.Bool("broken", wasBroken),
				slog.Bool("descriptor_changed", old.desc != desc),
			)
			go r.retire(old)
		} else {
			r.logger.Info("session created",
				slog.String("handler", handler),
				slog.String("platform", desc.Platform),
			)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) build(handler string, desc venue.Descriptor, v venue.Venue, old *Session) *Session {
	s := &Session{
		handler:   handler,
		desc:      desc,
		venue:     v,
		locker:    r.cfg.Locker,
		lockTTL:   r.cfg.LockTTL,
		createdAt: time.Now(),
		logger:    r.logger,
	}
	if old != nil {
		s.token = old.token
		s.link = old.link
		s.records = old.records
		s.cancel = old.cancel
		s.balance, s.balanceAt = old.Balance(), old.BalanceAt()
		return s
	}
	s.link = new(lineage)
	s.token = make(chan struct{}, 1)
	s.records = NewRecordStore()
	s.cancel = new(atomic.Bool)
	return s
}

// retire closes a replaced venue once no call is in flight on it.
func (r *Registry) retire(old *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), retireTimeout)
	defer cancel()

	select {
	case old.token <- struct{}{}:
		defer func() { <-old.token }()
	case <-ctx.Done():
		r.logger.Warn("closing busy venue", slog.String("handler", old.handler))
	}
	if err := old.venue.Close(); err != nil {
		r.logger.Warn("close venue failed",
			slog.String("handler", old.handler),
			slog.String("error", err.Error()),
		)
	}
}

// Deactivate tears the session down and drops its records. Running loops
// holding the session observe Deactivated at their next iteration.
func (r *Registry) Deactivate(handler string) error {
	r.mu.Lock()
	s, ok := r.sessions[handler]
	delete(r.sessions, handler)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session: deactivate %s: %w", handler, domain.ErrSessionNotFound)
	}
	s.link.deactivated.Store(true)
	r.retire(s)
	r.logger.Info("session deactivated", slog.String("handler", handler))
	return nil
}

// Revive rebuilds handler's session on its current descriptor when it is
// broken and returns the live session.
func (r *Registry) Revive(ctx context.Context, handler string) (*Session, error) {
	s := r.Get(handler)
	if s == nil {
		return nil, fmt.Errorf("session: revive %s: %w", handler, domain.ErrSessionNotFound)
	}
	if !s.Broken() {
		return s, nil
	}
	return r.Ensure(ctx, handler, s.desc)
}

// MarkBroken flags handler's session for rebuild. It reports whether a
// session existed.
func (r *Registry) MarkBroken(handler string) bool {
	s := r.Get(handler)
	if s == nil {
		return false
	}
	s.MarkBroken()
	return true
}

// List returns a snapshot of every session, sorted by handler.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Handler < out[j].Handler })
	return out
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.RLock()
	handlers := make([]string, 0, len(r.sessions))
	for h := range r.sessions {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()
	for _, h := range handlers {
		_ = r.Deactivate(h)
	}
}
