// Package rpc is a JSON-RPC client for the chain node that serves a wallet's
// transaction history and the exchange program's client accounts.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// Config tunes the client's paging and pacing.
type Config struct {
	URL           string
	ProgramID     string
	PageSize      int
	MaxSignatures int
	BatchSize     int
	Concurrency   int
	BatchDelay    time.Duration
	RetryBackoff  time.Duration
	Timeout       time.Duration
}

// Client talks to a single RPC endpoint. Every call goes through a circuit
// breaker and, when configured, a shared rate limiter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    domain.RateLimiter
	logger     *slog.Logger
	nextID     atomic.Int64
}

// NewClient creates a new RPC client. limiter may be nil.
func NewClient(cfg Config, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger = logger.With(slog.String("component", "rpc"))
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rpc",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A throttled or rejected call means the node is alive.
			var rpcErr *Error
			return err == nil || errors.Is(err, domain.ErrRateLimited) || errors.As(err, &rpcErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		limiter:    limiter,
		logger:     logger,
	}
}

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// call executes one JSON-RPC method and returns the raw "result" field.
func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "rpc"); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, method, params)
	})
	if err != nil {
		return nil, err
	}
	return out.(json.RawMessage), nil
}

func (c *Client) do(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: %w", method, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		// Some providers report throttling in-band.
		if rpcResp.Error.Code == 429 {
			return nil, fmt.Errorf("%s: %w", method, domain.ErrRateLimited)
		}
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
