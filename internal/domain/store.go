package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeCache persists reconstructed trade events per wallet. Upserts are
// insert-if-absent keyed on (wallet, id).
type TradeCache interface {
	UpsertTrades(ctx context.Context, wallet string, trades []TradeEvent) (int64, error)
	GetLatestSignature(ctx context.Context, wallet string) (string, error)
	GetCachedTrades(ctx context.Context, wallet string, limit int) ([]TradeEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
