// Package ledger turns a wallet's decoded protocol logs into trade events and
// assigns realized PnL to spot closes using FIFO lot matching.
//
// Everything in this package is a synchronous transformation over in-memory
// data. Per-request state lives in a Session; nothing is shared between runs.
package ledger

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// Session is the explicit context for one reconstruction run: the wallet, its
// resolved protocol client id, a snapshot of instrument metadata, and the
// diagnostics gathered along the way.
type Session struct {
	Wallet   string
	ClientID uint64

	instruments map[uint32]domain.Instrument
	tokens      map[uint32]domain.Token
	diag        *Diagnostics
	logger      *slog.Logger
}

// NewSession creates a Session over the given instrument snapshot.
func NewSession(wallet string, clientID uint64, instruments []domain.Instrument, tokens []domain.Token, logger *slog.Logger) *Session {
	s := &Session{
		Wallet:      wallet,
		ClientID:    clientID,
		instruments: make(map[uint32]domain.Instrument, len(instruments)),
		tokens:      make(map[uint32]domain.Token, len(tokens)),
		diag:        newDiagnostics(),
		logger: logger.With(
			slog.String("component", "ledger"),
			slog.String("wallet", wallet),
		),
	}
	for _, inst := range instruments {
		s.instruments[inst.MarketID] = inst
	}
	for _, tok := range tokens {
		s.tokens[tok.ID] = tok
	}
	return s
}

// Diagnostics returns the counters accumulated by this session.
func (s *Session) Diagnostics() *Diagnostics {
	return s.diag
}

func (s *Session) instrument(rec domain.DecodedLogRecord) domain.Instrument {
	if inst, ok := s.instruments[rec.MarketID]; ok {
		return inst
	}
	s.diag.MissingInstruments++
	s.logger.Warn("unknown market in log record",
		slog.Uint64("market_id", uint64(rec.MarketID)),
		slog.String("tag", rec.Tag.String()),
		slog.String("signature", rec.Signature),
	)
	return domain.Instrument{
		MarketID: rec.MarketID,
		Symbol:   fmt.Sprintf("market-%d", rec.MarketID),
		Kind:     domain.InstrumentSpot,
	}
}

func (s *Session) token(rec domain.DecodedLogRecord) domain.Token {
	if tok, ok := s.tokens[rec.TokenID]; ok {
		return tok
	}
	s.diag.MissingInstruments++
	s.logger.Warn("unknown token in log record",
		slog.Uint64("token_id", uint64(rec.TokenID)),
		slog.String("tag", rec.Tag.String()),
		slog.String("signature", rec.Signature),
	)
	return domain.Token{
		ID:     rec.TokenID,
		Symbol: fmt.Sprintf("token-%d", rec.TokenID),
	}
}

// amount converts a raw field, substituting zero when conversion fails.
func (s *Session) amount(rec domain.DecodedLogRecord, field string, raw *uint256.Int, decimals int32) decimal.Decimal {
	d, err := ToDecimal(raw, decimals)
	if err != nil {
		s.conversionFailed(rec, field, err)
		return decimal.Zero
	}
	return d
}

func (s *Session) signedAmount(rec domain.DecodedLogRecord, field string, raw *uint256.Int, decimals int32) decimal.Decimal {
	d, err := ToSignedDecimal(raw, rec.Negative, decimals)
	if err != nil {
		s.conversionFailed(rec, field, err)
		return decimal.Zero
	}
	return d
}

func (s *Session) conversionFailed(rec domain.DecodedLogRecord, field string, err error) {
	s.diag.ConversionFailures++
	s.logger.Warn("numeric field defaulted to zero",
		slog.String("field", field),
		slog.String("tag", rec.Tag.String()),
		slog.String("signature", rec.Signature),
		slog.Int("log_index", rec.LogIndex),
		slog.String("error", err.Error()),
	)
}
