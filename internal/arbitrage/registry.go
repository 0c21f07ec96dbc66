package arbitrage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Registry maps market families to their window strategy.
type Registry struct {
	strategies map[domain.MarketFamily]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add strategies.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[domain.MarketFamily]Strategy)}
}

// DefaultRegistry returns a registry with the Total and Handicap strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(totalStrategy{})
	r.Register(handicapStrategy{})
	return r
}

// Register adds a strategy under its family, replacing any previous one.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Family()] = s
}

// Supports reports whether a strategy is registered for f.
func (r *Registry) Supports(f domain.MarketFamily) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[f]
	return ok
}

// WindowFor computes the compensating window for the winning leg's market.
// Families without a strategy yield domain.ErrUnsupportedMarket.
func (r *Registry) WindowFor(winning domain.Market) (Window, error) {
	r.mu.RLock()
	s, ok := r.strategies[winning.Family]
	r.mu.RUnlock()
	if !ok {
		return Window{}, fmt.Errorf("arbitrage: %s: %w", winning.Family, domain.ErrUnsupportedMarket)
	}
	return s.Window(winning)
}

// Families returns the supported families, sorted.
func (r *Registry) Families() []domain.MarketFamily {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MarketFamily, 0, len(r.strategies))
	for f := range r.strategies {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var defaultRegistry = DefaultRegistry()

// WindowFor computes the window using the default registry.
func WindowFor(winning domain.Market) (Window, error) {
	return defaultRegistry.WindowFor(winning)
}
