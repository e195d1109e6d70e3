package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockHeld       = errors.New("lock already held")
	ErrDecode         = errors.New("log decode failed")
	ErrConversion     = errors.New("numeric conversion failed")
	ErrInvalidWallet  = errors.New("invalid wallet address")
	ErrClientNotFound = errors.New("protocol client id not found")

	// ErrHistoryTruncated marks a fetch that stopped at the signature cap;
	// the transactions returned are the oldest part of what is pending.
	ErrHistoryTruncated = errors.New("history truncated at signature cap")

	// ErrNotConfigured means an optional backend an operation needs is off.
	ErrNotConfigured = errors.New("backend not configured")
)
