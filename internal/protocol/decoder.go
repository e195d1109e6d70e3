// Package protocol decodes the exchange program's event logs into tagged
// records.
package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// DataPrefix marks log lines that carry a serialized program event.
const DataPrefix = "Program data: "

var twoTo128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// DecodeTransactionLogs decodes every event line of one transaction, in log
// order. Lines without DataPrefix are ignored. Any malformed event line fails
// the whole transaction.
func DecodeTransactionLogs(lines []string) ([]domain.DecodedLogRecord, error) {
	var records []domain.DecodedLogRecord
	for i, line := range lines {
		payload, ok := strings.CutPrefix(line, DataPrefix)
		if !ok {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("protocol: line %d: %w: %v", i, domain.ErrDecode, err)
		}
		rec, err := DecodeEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("protocol: line %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeEvent decodes a single binary event payload.
func DecodeEvent(raw []byte) (domain.DecodedLogRecord, error) {
	r := &reader{buf: raw}
	rec := domain.DecodedLogRecord{
		Tag:      domain.Tag(r.u8()),
		ClientID: r.u64(),
	}

	switch rec.Tag {
	case domain.TagDeposit, domain.TagWithdraw, domain.TagPerpDeposit, domain.TagPerpWithdraw:
		rec.TokenID = r.u32()
		rec.Amount = r.u128()
	case domain.TagSpotFill:
		rec.MarketID = r.u32()
		rec.Side = r.u8()
		rec.Quantity = r.u128()
		rec.QuoteQuantity = r.u128()
	case domain.TagTakerOrder:
		rec.MarketID = r.u32()
		rec.Side = r.u8()
		rec.OrderID = r.u64()
		rec.Quantity = r.u128()
	case domain.TagMakerFill:
		rec.MarketID = r.u32()
		rec.OrderID = r.u64()
		rec.TakerOrderID = r.u64()
		rec.Price = r.u128()
		rec.Quantity = r.u128()
	case domain.TagCancel:
		rec.MarketID = r.u32()
		rec.OrderID = r.u64()
	case domain.TagFeePaid:
		rec.MarketID = r.u32()
		rec.Amount = r.u128()
	case domain.TagPerpFill:
		rec.MarketID = r.u32()
		rec.Side = r.u8()
		rec.Price = r.u128()
		rec.Quantity = r.u128()
		rec.Fee = r.u128()
	case domain.TagFunding:
		rec.MarketID = r.u32()
		rec.Amount, rec.Negative = r.i128()
	}

	if r.err != nil {
		return domain.DecodedLogRecord{}, fmt.Errorf("%w: %s event: %v", domain.ErrDecode, rec.Tag, r.err)
	}
	return rec, nil
}

// reader is a little-endian cursor. The first short read sets err and every
// later read returns zero.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("truncated at offset %d: need %d bytes, have %d", r.off, n, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) u128() *uint256.Int {
	b := r.take(16)
	if b == nil {
		return nil
	}
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be)
}

// i128 returns the magnitude and sign of a two's-complement 128-bit value.
func (r *reader) i128() (*uint256.Int, bool) {
	v := r.u128()
	if v == nil {
		return nil, false
	}
	if v.Lt(new(uint256.Int).Rsh(twoTo128, 1)) {
		return v, false
	}
	return new(uint256.Int).Sub(twoTo128, v), true
}
