package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// BalanceCache implements domain.BalanceCache as one hash per handler at
// "balance:<handler>" with fields "balance" and "ts" (unix nanoseconds).
type BalanceCache struct {
	c *Client
}

// NewBalanceCache creates a BalanceCache.
func NewBalanceCache(c *Client) *BalanceCache {
	return &BalanceCache{c: c}
}

// SetBalance stores handler's balance.
func (bc *BalanceCache) SetBalance(ctx context.Context, handler string, balance decimal.Decimal, ts time.Time) error {
	err := bc.c.rdb.HSet(ctx, bc.c.key("balance", handler), map[string]any{
		"balance": balance.String(),
		"ts":      strconv.FormatInt(ts.UnixNano(), 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: set balance %s: %w", handler, err)
	}
	return nil
}

// GetBalance returns handler's last stored balance or domain.ErrNotFound.
func (bc *BalanceCache) GetBalance(ctx context.Context, handler string) (decimal.Decimal, time.Time, error) {
	vals, err := bc.c.rdb.HGetAll(ctx, bc.c.key("balance", handler)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get balance %s: %w", handler, err)
	}
	bal, ts, err := parseBalance(vals)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get balance %s: %w", handler, err)
	}
	return bal, ts, nil
}

// GetBalances reads several handlers in one pipeline. Handlers without a
// stored balance are left out.
func (bc *BalanceCache) GetBalances(ctx context.Context, handlers []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(handlers))
	if len(handlers) == 0 {
		return out, nil
	}
	pipe := bc.c.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(handlers))
	for _, h := range handlers {
		cmds[h] = pipe.HGetAll(ctx, bc.c.key("balance", h))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get balances: %w", err)
	}
	for h, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if bal, _, err := parseBalance(vals); err == nil {
			out[h] = bal
		}
	}
	return out, nil
}

func parseBalance(vals map[string]string) (decimal.Decimal, time.Time, error) {
	raw, ok := vals["balance"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	bal, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	var ts time.Time
	if n, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		ts = time.Unix(0, n).UTC()
	}
	return bal, ts, nil
}

var _ domain.BalanceCache = (*BalanceCache)(nil)
