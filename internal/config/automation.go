package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// AutomationConfig holds the thresholds operators may change while the
// engine is running.
type AutomationConfig struct {
	OddsDropThresholdPct    float64 `toml:"odds_drop_threshold_pct" json:"odds_drop_threshold_pct"`
	SupplementaryTimeoutSec float64 `toml:"supplementary_timeout_sec" json:"supplementary_timeout_sec"`
	MaxRetryCount           int     `toml:"max_retry_count" json:"max_retry_count"`
}

// SupplementaryTimeout returns the fallback compensating-loop budget.
func (a AutomationConfig) SupplementaryTimeout() time.Duration {
	return time.Duration(a.SupplementaryTimeoutSec * float64(time.Second))
}

// Validate reports every out-of-range threshold.
func (a AutomationConfig) Validate() error {
	var errs []string
	if err := checkThreshold(a.OddsDropThresholdPct); err != nil {
		errs = append(errs, err.Error())
	}
	if err := checkTimeout(a.SupplementaryTimeoutSec); err != nil {
		errs = append(errs, err.Error())
	}
	if err := checkRetries(a.MaxRetryCount); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func checkThreshold(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("odds_drop_threshold_pct must be a finite value >= 0, got %v", v)
	}
	return nil
}

func checkTimeout(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("supplementary_timeout_sec must be a finite value > 0, got %v", v)
	}
	return nil
}

func checkRetries(n int) error {
	if n < 0 {
		return fmt.Errorf("max_retry_count must be >= 0, got %d", n)
	}
	return nil
}

// AutomationPatch is a partial update; nil fields are left unchanged.
type AutomationPatch struct {
	OddsDropThresholdPct    *float64 `json:"odds_drop_threshold_pct,omitempty"`
	SupplementaryTimeoutSec *float64 `json:"supplementary_timeout_sec,omitempty"`
	MaxRetryCount           *int     `json:"max_retry_count,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AutomationPatch) Empty() bool {
	return p.OddsDropThresholdPct == nil && p.SupplementaryTimeoutSec == nil && p.MaxRetryCount == nil
}

// Automation is the process-wide holder for AutomationConfig. It is safe for
// concurrent use; readers call Snapshot on every use instead of caching.
type Automation struct {
	mu sync.RWMutex
	v  AutomationConfig
}

// NewAutomation validates initial and wraps it in a holder.
func NewAutomation(initial AutomationConfig) (*Automation, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("config: automation: %w", err)
	}
	return &Automation{v: initial}, nil
}

// Snapshot returns the current values.
func (a *Automation) Snapshot() AutomationConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.v
}

// SetOddsDropThresholdPct updates the odds-drop threshold.
func (a *Automation) SetOddsDropThresholdPct(v float64) error {
	if err := checkThreshold(v); err != nil {
		return fmt.Errorf("config: automation: %w", err)
	}
	a.mu.Lock()
	a.v.OddsDropThresholdPct = v
	a.mu.Unlock()
	return nil
}

// SetSupplementaryTimeoutSec updates the fallback compensating-loop budget.
func (a *Automation) SetSupplementaryTimeoutSec(v float64) error {
	if err := checkTimeout(v); err != nil {
		return fmt.Errorf("config: automation: %w", err)
	}
	a.mu.Lock()
	a.v.SupplementaryTimeoutSec = v
	a.mu.Unlock()
	return nil
}

// SetMaxRetryCount updates the compensating-loop retry bound.
func (a *Automation) SetMaxRetryCount(n int) error {
	if err := checkRetries(n); err != nil {
		return fmt.Errorf("config: automation: %w", err)
	}
	a.mu.Lock()
	a.v.MaxRetryCount = n
	a.mu.Unlock()
	return nil
}

// Apply validates every field in p and applies them together. Nothing is
// changed if any field is invalid.
func (a *Automation) Apply(p AutomationPatch) (AutomationConfig, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.v
	if p.OddsDropThresholdPct != nil {
		next.OddsDropThresholdPct = *p.OddsDropThresholdPct
	}
	if p.SupplementaryTimeoutSec != nil {
		next.SupplementaryTimeoutSec = *p.SupplementaryTimeoutSec
	}
	if p.MaxRetryCount != nil {
		next.MaxRetryCount = *p.MaxRetryCount
	}
	if err := next.Validate(); err != nil {
		return a.v, fmt.Errorf("config: automation: %w", err)
	}
	a.v = next
	return next, nil
}
