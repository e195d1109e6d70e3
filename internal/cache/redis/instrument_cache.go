package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// InstrumentCache implements domain.InstrumentCache. The whole catalog is
// replaced at once so readers never see a half-written set.
//
// Key schema:
//
//	{prefix}:instruments - hash with fields "markets" and "tokens", each JSON
type InstrumentCache struct {
	c *Client
}

// NewInstrumentCache creates an InstrumentCache backed by the given Client.
func NewInstrumentCache(c *Client) *InstrumentCache {
	return &InstrumentCache{c: c}
}

// SetInstruments replaces the cached catalog.
func (ic *InstrumentCache) SetInstruments(ctx context.Context, instruments []domain.Instrument, tokens []domain.Token) error {
	markets, err := json.Marshal(instruments)
	if err != nil {
		return fmt.Errorf("redis: marshal instruments: %w", err)
	}
	toks, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("redis: marshal tokens: %w", err)
	}

	key := ic.c.key("instruments")
	pipe := ic.c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "markets", markets, "tokens", toks)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set instruments: %w", err)
	}
	return nil
}

// Instruments returns the cached catalog, or domain.ErrNotFound when it has
// never been written.
func (ic *InstrumentCache) Instruments(ctx context.Context) ([]domain.Instrument, []domain.Token, error) {
	vals, err := ic.c.rdb.HMGet(ctx, ic.c.key("instruments"), "markets", "tokens").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("redis: get instruments: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, nil, domain.ErrNotFound
	}

	var (
		instruments []domain.Instrument
		tokens      []domain.Token
	)
	if err := json.Unmarshal([]byte(vals[0].(string)), &instruments); err != nil {
		return nil, nil, fmt.Errorf("redis: unmarshal instruments: %w", err)
	}
	if err := json.Unmarshal([]byte(vals[1].(string)), &tokens); err != nil {
		return nil, nil, fmt.Errorf("redis: unmarshal tokens: %w", err)
	}
	return instruments, tokens, nil
}

var _ domain.InstrumentCache = (*InstrumentCache)(nil)
