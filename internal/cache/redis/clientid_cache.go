package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// ClientIDCache implements domain.ClientIDCache. A wallet's client id never
// changes once registered, so entries only expire to bound memory.
//
// Key schema:
//
//	{prefix}:clientid:{wallet} - decimal client id
type ClientIDCache struct {
	c   *Client
	ttl time.Duration
}

// NewClientIDCache creates a ClientIDCache. A zero ttl keeps entries forever.
func NewClientIDCache(c *Client, ttl time.Duration) *ClientIDCache {
	return &ClientIDCache{c: c, ttl: ttl}
}

// GetClientID returns domain.ErrNotFound on a miss.
func (cc *ClientIDCache) GetClientID(ctx context.Context, wallet string) (uint64, error) {
	id, err := cc.c.rdb.Get(ctx, cc.c.key("clientid", wallet)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get client id %s: %w", wallet, err)
	}
	return id, nil
}

// SetClientID stores wallet's client id.
func (cc *ClientIDCache) SetClientID(ctx context.Context, wallet string, clientID uint64) error {
	if err := cc.c.rdb.Set(ctx, cc.c.key("clientid", wallet), clientID, cc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set client id %s: %w", wallet, err)
	}
	return nil
}

var _ domain.ClientIDCache = (*ClientIDCache)(nil)
