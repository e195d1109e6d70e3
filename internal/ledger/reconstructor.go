package ledger

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

// DecodeFunc turns one transaction's log lines into tagged records. It may
// fail; a failure costs only that transaction.
type DecodeFunc func(logLines []string) ([]domain.DecodedLogRecord, error)

// makerExecution is one fill against the wallet's taker order.
type makerExecution struct {
	orderID      uint64
	takerOrderID uint64
	price        decimal.Decimal
	qty          decimal.Decimal
}

// txAccumulator is the per-transaction state. It is discarded once the
// transaction has been walked.
type txAccumulator struct {
	taker    *TakerOrder
	takerQty decimal.Decimal
	fills    []makerExecution
	fee      decimal.Decimal
}

// ReconstructBatch decodes and reconstructs every transaction in txs, in the
// order given. Failed transactions and transactions whose logs cannot be
// decoded are skipped with a diagnostic; the rest of the batch continues.
func (s *Session) ReconstructBatch(txs []domain.RawTransaction, decode DecodeFunc) []domain.TradeEvent {
	var events []domain.TradeEvent
	for _, tx := range txs {
		if tx.Failed {
			continue
		}
		records, err := safeDecode(decode, tx.LogLines)
		if err != nil {
			s.diag.DecodeFailures++
			s.logger.Warn("skipping undecodable transaction",
				slog.String("signature", tx.Signature),
				slog.String("error", err.Error()),
			)
			continue
		}
		events = append(events, s.ReconstructTransaction(tx, records)...)
	}
	return events
}

// safeDecode shields the batch from a decoder that panics on malformed input.
func safeDecode(decode DecodeFunc, lines []string) (records []domain.DecodedLogRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("%w: decoder panic: %v", domain.ErrDecode, r)
		}
	}()
	return decode(lines)
}

// ReconstructTransaction walks one transaction's records in log order and
// returns the trade events they produce for the session's wallet.
func (s *Session) ReconstructTransaction(tx domain.RawTransaction, records []domain.DecodedLogRecord) []domain.TradeEvent {
	var (
		acc    txAccumulator
		events []domain.TradeEvent
	)
	acc.fee = decimal.Zero

	for i := range records {
		rec := records[i]
		rec.Signature = tx.Signature
		rec.Timestamp = tx.BlockTime
		rec.Slot = tx.Slot
		rec.LogIndex = i

		switch c := Classify(rec, s.ClientID).(type) {
		case Transfer:
			events = s.appendEvent(events, s.transferEvent(c))
		case Funding:
			events = s.appendEvent(events, s.fundingEvent(c))
		case SpotFill:
			events = s.appendEvent(events, s.spotFillEvent(c))
		case PerpFill:
			events = s.appendEvent(events, s.perpFillEvent(c))
		case FeePaid:
			inst := s.instrument(c.DecodedLogRecord)
			acc.fee = acc.fee.Add(s.amount(c.DecodedLogRecord, "amount", c.Amount, inst.QuoteDecimals))
		case TakerOrder:
			if acc.taker != nil {
				s.diag.DuplicateTakerOrders++
				s.logger.Warn("second taker order in transaction, keeping the later one",
					slog.String("signature", tx.Signature),
					slog.Uint64("previous_order_id", acc.taker.OrderID),
					slog.Uint64("order_id", c.OrderID),
				)
			}
			taker := c
			acc.taker = &taker
			inst := s.instrument(c.DecodedLogRecord)
			acc.takerQty = s.amount(c.DecodedLogRecord, "qty", c.Quantity, inst.BaseDecimals)
		case MakerFill:
			inst := s.instrument(c.DecodedLogRecord)
			acc.fills = append(acc.fills, makerExecution{
				orderID:      c.OrderID,
				takerOrderID: c.TakerOrderID,
				price:        s.amount(c.DecodedLogRecord, "price", c.Price, inst.PriceDecimals),
				qty:          s.amount(c.DecodedLogRecord, "qty", c.Quantity, inst.BaseDecimals),
			})
		case Cancel, Foreign:
		case Unrecognized:
			s.diag.UnknownTags[c.Tag]++
			s.logger.Info("unrecognized protocol event tag",
				slog.Int("tag", int(c.Tag)),
				slog.Uint64("client_id", c.ClientID),
				slog.String("signature", tx.Signature),
				slog.Int("log_index", i),
			)
		default:
			panic(fmt.Sprintf("ledger: unhandled classification %T", c))
		}
	}

	if acc.taker != nil && len(acc.fills) > 0 {
		events = s.appendEvent(events, s.takerEvent(acc))
	}
	return events
}

// appendEvent drops records whose price and size are both zero.
func (s *Session) appendEvent(events []domain.TradeEvent, ev domain.TradeEvent) []domain.TradeEvent {
	if ev.Price.IsZero() && ev.Size.IsZero() {
		s.diag.DegenerateRecords++
		s.logger.Debug("dropping zero price and size event",
			slog.String("id", ev.ID),
		)
		return events
	}
	return append(events, ev)
}

func (s *Session) baseEvent(rec domain.DecodedLogRecord) domain.TradeEvent {
	return domain.TradeEvent{
		Wallet:        s.Wallet,
		Timestamp:     rec.Timestamp,
		ChainTx:       rec.Signature,
		Slot:          rec.Slot,
		LogIndex:      rec.LogIndex,
		Price:         decimal.Zero,
		Size:          decimal.Zero,
		Fee:           decimal.Zero,
		PnL:           decimal.Zero,
		RealizedPnL:   decimal.Zero,
		UnmatchedSize: decimal.Zero,
	}
}

func sideOf(b uint8) domain.Side {
	if b == 0 {
		return domain.SideLong
	}
	return domain.SideShort
}

func (s *Session) transferEvent(c Transfer) domain.TradeEvent {
	tok := s.token(c.DecodedLogRecord)
	ev := s.baseEvent(c.DecodedLogRecord)
	ev.Kind = c.Kind
	ev.PositionType = c.PositionType
	ev.Symbol = tok.Symbol
	ev.Size = s.amount(c.DecodedLogRecord, "amount", c.Amount, tok.Decimals)

	switch c.Kind {
	case domain.KindDeposit:
		ev.ID = depositID(c.Signature, c.LogIndex)
		ev.Side = domain.SideLong
	case domain.KindWithdraw:
		ev.ID = withdrawID(c.Signature, c.LogIndex)
		ev.Side = domain.SideShort
	case domain.KindPerpDeposit:
		ev.ID = perpDepositID(c.Signature, c.LogIndex)
		ev.Side = domain.SideLong
	case domain.KindPerpWithdraw:
		ev.ID = perpWithdrawID(c.Signature, c.LogIndex)
		ev.Side = domain.SideShort
	}
	return ev
}

// fundingEvent records the payment magnitude as size; the side is Long when
// the wallet received funding and Short when it paid.
func (s *Session) fundingEvent(c Funding) domain.TradeEvent {
	inst := s.instrument(c.DecodedLogRecord)
	amount := s.signedAmount(c.DecodedLogRecord, "amount", c.Amount, inst.QuoteDecimals)

	ev := s.baseEvent(c.DecodedLogRecord)
	ev.ID = fundingID(c.Signature, c.LogIndex)
	ev.Kind = domain.KindFunding
	ev.PositionType = domain.PositionFunding
	ev.Symbol = inst.Symbol
	ev.Size = amount.Abs()
	ev.Side = domain.SideLong
	if amount.IsNegative() {
		ev.Side = domain.SideShort
	}
	return ev
}

func (s *Session) spotFillEvent(c SpotFill) domain.TradeEvent {
	inst := s.instrument(c.DecodedLogRecord)
	base := s.amount(c.DecodedLogRecord, "base_qty", c.Quantity, inst.BaseDecimals)
	quote := s.amount(c.DecodedLogRecord, "quote_qty", c.QuoteQuantity, inst.QuoteDecimals)

	ev := s.baseEvent(c.DecodedLogRecord)
	ev.ID = spotFillID(c.Signature, c.LogIndex)
	ev.Kind = domain.KindSpotFill
	ev.PositionType = domain.PositionSpot
	ev.Symbol = inst.Symbol
	ev.Side = sideOf(c.Side)
	ev.Size = base
	ev.Price = ratio(quote, base)
	return ev
}

func (s *Session) perpFillEvent(c PerpFill) domain.TradeEvent {
	inst := s.instrument(c.DecodedLogRecord)

	ev := s.baseEvent(c.DecodedLogRecord)
	ev.ID = perpFillID(c.Signature, c.LogIndex)
	ev.Kind = domain.KindPerpFill
	ev.PositionType = domain.PositionPerp
	ev.Symbol = inst.Symbol
	ev.Side = sideOf(c.Side)
	ev.Price = s.amount(c.DecodedLogRecord, "price", c.Price, inst.PriceDecimals)
	ev.Size = s.amount(c.DecodedLogRecord, "size", c.Quantity, inst.BaseDecimals)
	if c.Fee != nil {
		ev.Fee = s.amount(c.DecodedLogRecord, "fee", c.Fee, inst.QuoteDecimals)
	}
	return ev
}

// takerEvent synthesizes the wallet's taker trade at the quantity-weighted
// average price of all fills in the transaction. Sums are exact, so the
// result does not depend on the order the fills were logged in.
func (s *Session) takerEvent(acc txAccumulator) domain.TradeEvent {
	taker := acc.taker.DecodedLogRecord
	inst := s.instrument(taker)

	notional, qty := decimal.Zero, decimal.Zero
	for _, f := range acc.fills {
		// Zero means the protocol version did not log the taker reference.
		if f.takerOrderID != 0 && f.takerOrderID != taker.OrderID {
			s.diag.MismatchedMakerFills++
			s.logger.Warn("maker fill references another taker order, aggregating anyway",
				slog.String("signature", taker.Signature),
				slog.Uint64("taker_order_id", taker.OrderID),
				slog.Uint64("fill_taker_order_id", f.takerOrderID),
				slog.Uint64("maker_order_id", f.orderID),
			)
		}
		notional = notional.Add(f.qty.Mul(f.price))
		qty = qty.Add(f.qty)
	}

	ev := s.baseEvent(taker)
	ev.ID = takerFillID(taker.Signature, taker.OrderID)
	ev.Kind = domain.KindSpotFill
	ev.PositionType = domain.PositionSpot
	ev.Symbol = inst.Symbol
	ev.Side = sideOf(taker.Side)
	ev.Price = ratio(notional, qty)
	ev.Size = acc.takerQty
	ev.Fee = acc.fee
	return ev
}
