package domain

import (
	"context"
	"time"
)

// ClientIDCache remembers the protocol client id resolved for a wallet.
type ClientIDCache interface {
	GetClientID(ctx context.Context, wallet string) (uint64, error)
	SetClientID(ctx context.Context, wallet string, clientID uint64) error
}

// InstrumentCache provides market and token metadata lookups.
type InstrumentCache interface {
	SetInstruments(ctx context.Context, instruments []Instrument, tokens []Token) error
	Instruments(ctx context.Context) ([]Instrument, []Token, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
