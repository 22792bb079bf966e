// journal/journal.go
package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reasons a position leaves the open slot.
const (
	ReasonClose       = "CLOSE"
	ReasonLiquidation = "LIQUIDATION"
)

// TradeRecord is the audit entry written when a position is finalized.
type TradeRecord struct {
	PositionID string
	Symbol     string
	Shares     int64
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	OpenTime   time.Time
	CloseTime  time.Time
	Commission decimal.Decimal // open + close
	BorrowFees decimal.Decimal
	RealizedPL decimal.Decimal
	ReturnPct  decimal.Decimal
	Reason     string
}

// EquitySnapshot mirrors one history entry of a position.
type EquitySnapshot struct {
	PositionID    string
	Time          time.Time
	Price         decimal.Decimal
	Equity        decimal.Decimal
	UnrealizedPnl decimal.Decimal
	NetPnl        decimal.Decimal
	MarginLevel   decimal.Decimal
	Health        string
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
