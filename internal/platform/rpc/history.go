package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// SignatureInfo is one entry of an address's signature history.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// Failed reports whether the transaction was rejected on chain.
func (s SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// FetchSignatures pages backwards through address's history, newest first,
// down to until (exclusive). A page that fails fails the whole listing, since
// the pages already read are the newest ones and would leave a gap behind
// until.
func (c *Client) FetchSignatures(ctx context.Context, address, until string) ([]SignatureInfo, error) {
	var (
		all    []SignatureInfo
		before string
	)
	for {
		opts := map[string]any{"limit": c.cfg.PageSize, "commitment": "finalized"}
		if until != "" {
			opts["until"] = until
		}
		if before != "" {
			opts["before"] = before
		}

		raw, err := c.call(ctx, "getSignaturesForAddress", address, opts)
		if err != nil {
			return nil, fmt.Errorf("rpc: get signatures for %s: %w", address, err)
		}
		var page []SignatureInfo
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("rpc: decode signatures: %w", err)
		}

		all = append(all, page...)
		if len(page) < c.cfg.PageSize {
			return all, nil
		}
		before = page[len(page)-1].Signature
	}
}

type transactionResult struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Err         json.RawMessage `json:"err"`
		LogMessages []string        `json:"logMessages"`
	} `json:"meta"`
}

// FetchTransaction loads one transaction with its program logs. It retries
// once after RetryBackoff when the node throttles the request. A transaction
// the node does not know yet yields ErrNotFound.
func (c *Client) FetchTransaction(ctx context.Context, signature string) (domain.RawTransaction, error) {
	opts := map[string]any{
		"encoding":                       "json",
		"commitment":                     "finalized",
		"maxSupportedTransactionVersion": 0,
	}

	raw, err := c.call(ctx, "getTransaction", signature, opts)
	if errors.Is(err, domain.ErrRateLimited) {
		c.logger.Warn("rate limited, retrying once",
			slog.String("signature", signature),
			slog.Duration("backoff", c.cfg.RetryBackoff),
		)
		if err := sleep(ctx, c.cfg.RetryBackoff); err != nil {
			return domain.RawTransaction{}, fmt.Errorf("rpc: get transaction %s: %w", signature, err)
		}
		raw, err = c.call(ctx, "getTransaction", signature, opts)
	}
	if err != nil {
		return domain.RawTransaction{}, fmt.Errorf("rpc: get transaction %s: %w", signature, err)
	}

	var res *transactionResult
	if len(raw) == 0 {
		return domain.RawTransaction{}, fmt.Errorf("rpc: get transaction %s: %w", signature, domain.ErrNotFound)
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.RawTransaction{}, fmt.Errorf("rpc: decode transaction %s: %w", signature, err)
	}
	if res == nil {
		return domain.RawTransaction{}, fmt.Errorf("rpc: get transaction %s: %w", signature, domain.ErrNotFound)
	}

	tx := domain.RawTransaction{
		Signature: signature,
		Slot:      res.Slot,
	}
	if res.BlockTime != nil {
		tx.BlockTime = time.Unix(*res.BlockTime, 0).UTC()
	}
	if res.Meta != nil {
		tx.Failed = len(res.Meta.Err) > 0 && string(res.Meta.Err) != "null"
		tx.LogLines = res.Meta.LogMessages
	}
	return tx, nil
}

// FetchTransactions loads signatures in batches of BatchSize, at most
// Concurrency requests in flight, pausing BatchDelay between batches. The
// result keeps the order of signatures. When a batch fails the transactions
// from every earlier batch are returned together with the error.
func (c *Client) FetchTransactions(ctx context.Context, signatures []string) ([]domain.RawTransaction, error) {
	out := make([]domain.RawTransaction, 0, len(signatures))

	for start := 0; start < len(signatures); start += c.cfg.BatchSize {
		if start > 0 {
			if err := sleep(ctx, c.cfg.BatchDelay); err != nil {
				return out, fmt.Errorf("rpc: fetch transactions: %w", err)
			}
		}

		batch := signatures[start:min(start+c.cfg.BatchSize, len(signatures))]
		results := make([]domain.RawTransaction, len(batch))
		found := make([]bool, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Concurrency)
		for i, sig := range batch {
			g.Go(func() error {
				tx, err := c.FetchTransaction(gctx, sig)
				if errors.Is(err, domain.ErrNotFound) {
					c.logger.Warn("transaction not found, skipping", slog.String("signature", sig))
					return nil
				}
				if err != nil {
					return err
				}
				results[i] = tx
				found[i] = true
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			c.logger.Error("batch fetch failed, returning prefix",
				slog.Int("fetched", len(out)),
				slog.Int("requested", len(signatures)),
				slog.String("error", err.Error()),
			)
			return out, err
		}

		for i := range results {
			if found[i] {
				out = append(out, results[i])
			}
		}
	}
	return out, nil
}

// FetchHistory returns address's transactions newer than until, oldest
// first. Whatever it returns is a contiguous run starting right after until,
// so the next call can resume from the newest transaction returned. When the
// listing holds more than MaxSignatures entries only the oldest MaxSignatures
// are fetched and the error wraps ErrHistoryTruncated. A failed batch yields
// the batches before it together with the error.
func (c *Client) FetchHistory(ctx context.Context, address, until string) ([]domain.RawTransaction, error) {
	sigs, err := c.FetchSignatures(ctx, address, until)
	if err != nil {
		return nil, err
	}

	var truncated error
	if limit := c.cfg.MaxSignatures; limit > 0 && len(sigs) > limit {
		c.logger.Warn("history exceeds signature cap, fetching oldest run",
			slog.String("address", address),
			slog.Int("listed", len(sigs)),
			slog.Int("max", limit),
		)
		truncated = fmt.Errorf("rpc: history for %s: %w: fetched oldest %d of %d",
			address, domain.ErrHistoryTruncated, limit, len(sigs))
		sigs = sigs[len(sigs)-limit:]
	}

	ordered := make([]string, 0, len(sigs))
	for _, s := range sigs {
		ordered = append(ordered, s.Signature)
	}
	slices.Reverse(ordered)

	txs, err := c.FetchTransactions(ctx, ordered)
	if err != nil {
		return txs, err
	}
	return txs, truncated
}
