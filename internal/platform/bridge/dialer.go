package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// DialerConfig holds what every sidecar connection shares.
type DialerConfig struct {
	Signer         *crypto.RequestSigner
	Timeout        time.Duration
	RatePerSecond  float64
	Burst          int
	StakePrecision int32
}

// Dialer opens a Session per handler descriptor.
type Dialer struct {
	cfg    DialerConfig
	logger *slog.Logger
}

// NewDialer creates a Dialer.
func NewDialer(cfg DialerConfig, logger *slog.Logger) *Dialer {
	return &Dialer{cfg: cfg, logger: logger.With(slog.String("component", "bridge"))}
}

// Dial implements venue.Dialer.
func (d *Dialer) Dial(ctx context.Context, handler string, desc venue.Descriptor) (venue.Venue, error) {
	if desc.Endpoint == "" {
		return nil, fmt.Errorf("bridge: dial %s: %w: empty endpoint", handler, domain.ErrInvalidCommand)
	}
	c := NewClient(desc.Endpoint, d.cfg.Signer, d.cfg.Timeout, d.cfg.RatePerSecond, d.cfg.Burst)
	s, err := NewSession(ctx, c, desc.ProfileID, venue.Info{
		Platform:       desc.Platform,
		StakePrecision: d.cfg.StakePrecision,
	})
	if err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "bridge session opened",
		slog.String("handler", handler),
		slog.String("endpoint", desc.Endpoint),
		slog.String("profile", desc.ProfileID),
		slog.String("platform", s.Info().Platform),
	)
	return s, nil
}

var _ venue.Dialer = (*Dialer)(nil)

// Translator resolves raw bookmaker market ids through a sidecar's
// translation endpoint.
type Translator struct {
	c *Client
}

// NewTranslator creates a Translator against endpoint.
func NewTranslator(endpoint string, signer *crypto.RequestSigner, timeout time.Duration) *Translator {
	return &Translator{c: NewClient(endpoint, signer, timeout, 0, 0)}
}

// Translate implements venue.Translator.
func (t *Translator) Translate(ctx context.Context, sport, rawMarketID, parameter string) (domain.Market, error) {
	var out translateResponse
	err := t.c.do(ctx, http.MethodPost, "/v1/translate", translateBody{
		Sport: sport, MarketID: rawMarketID, Parameter: parameter,
	}, &out)
	if err != nil {
		return domain.Market{}, fmt.Errorf("bridge: translate %s: %w", rawMarketID, err)
	}
	m, err := domain.ParseMarket(out.Market)
	if err != nil {
		return domain.Market{}, fmt.Errorf("%w: %q: %v", venue.ErrTranslation, out.Market, err)
	}
	return m, nil
}

var _ venue.Translator = (*Translator)(nil)
