package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusClosed     Status = "CLOSED"
	StatusLiquidated Status = "LIQUIDATED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusLiquidated:
		return true
	}
	return false
}

// Final reports whether the status is terminal.
func (s Status) Final() bool {
	return s == StatusClosed || s == StatusLiquidated
}

// Snapshot is one mark-to-market observation appended by check.
type Snapshot struct {
	Timestamp     time.Time       `json:"timestamp"`
	Price         decimal.Decimal `json:"price"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	NetPnl        decimal.Decimal `json:"netPnl"`
	MarginLevel   decimal.Decimal `json:"marginLevel"`
}

// CloseRecord holds the final accounting of a closed or liquidated position.
type CloseRecord struct {
	ClosePrice      decimal.Decimal `json:"closePrice"`
	CloseTimestamp  time.Time       `json:"closeTimestamp"`
	CloseCommission decimal.Decimal `json:"closeCommission"`
	FinalEquity     decimal.Decimal `json:"finalEquity"`
	TotalReturnPct  decimal.Decimal `json:"totalReturnPct"`
}

// Position is a leveraged short equity position. Once its status is final
// the value must not be mutated again.
type Position struct {
	ID                      string          `json:"id"`
	Symbol                  string          `json:"symbol"`
	Shares                  int64           `json:"shares"`
	EntryPrice              decimal.Decimal `json:"entryPrice"`
	EntryTimestamp          time.Time       `json:"entryTimestamp"`
	InitialCapital          decimal.Decimal `json:"initialCapital"`
	CommissionRate          decimal.Decimal `json:"commissionRate"`
	BorrowFeeAnnualRate     decimal.Decimal `json:"borrowFeeAnnualRate"`
	InitialMarginRatio      decimal.Decimal `json:"initialMarginRatio"`
	MaintenanceMarginRatio  decimal.Decimal `json:"maintenanceMarginRatio"`
	LiquidationMarginRatio  decimal.Decimal `json:"liquidationMarginRatio"`
	CashAfterOpenCommission decimal.Decimal `json:"cashAfterOpenCommission"`
	Status                  Status          `json:"status"`
	MarginCalls             int             `json:"marginCalls"`
	History                 []Snapshot      `json:"history"`
	CloseRecord             *CloseRecord    `json:"closeRecord,omitempty"`
}

// Terms returns the rate set the position was opened with.
func (p *Position) Terms() Terms {
	return Terms{
		CommissionRate:         p.CommissionRate,
		BorrowFeeAnnualRate:    p.BorrowFeeAnnualRate,
		InitialMarginRatio:     p.InitialMarginRatio,
		MaintenanceMarginRatio: p.MaintenanceMarginRatio,
		LiquidationMarginRatio: p.LiquidationMarginRatio,
	}
}

func (p *Position) EntryValue() decimal.Decimal {
	return decimal.NewFromInt(p.Shares).Mul(p.EntryPrice)
}

// LastSnapshot returns the most recent history entry, if any.
func (p *Position) LastSnapshot() (Snapshot, bool) {
	if len(p.History) == 0 {
		return Snapshot{}, false
	}
	return p.History[len(p.History)-1], true
}

// Append adds a snapshot to the history. A timestamp earlier than the last
// entry is clamped so the history stays chronological.
func (p *Position) Append(s Snapshot) Snapshot {
	if last, ok := p.LastSnapshot(); ok && s.Timestamp.Before(last.Timestamp) {
		s.Timestamp = last.Timestamp
	}
	p.History = append(p.History, s)
	return s
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.History = append([]Snapshot(nil), p.History...)
	if p.CloseRecord != nil {
		cr := *p.CloseRecord
		c.CloseRecord = &cr
	}
	return &c
}

// Validate checks that a stored position is internally consistent.
func (p *Position) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if p.Shares <= 0 {
		return fmt.Errorf("shares must be positive, got %d", p.Shares)
	}
	if !p.EntryPrice.IsPositive() {
		return fmt.Errorf("entryPrice must be positive, got %s", p.EntryPrice)
	}
	if !p.InitialCapital.IsPositive() {
		return fmt.Errorf("initialCapital must be positive, got %s", p.InitialCapital)
	}
	if p.EntryTimestamp.IsZero() {
		return fmt.Errorf("entryTimestamp is required")
	}
	if err := p.Terms().Validate(); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return fmt.Errorf("unknown status %q", p.Status)
	}
	if p.Status.Final() && p.CloseRecord == nil {
		return fmt.Errorf("status %s requires a closeRecord", p.Status)
	}
	if p.Status == StatusOpen && p.CloseRecord != nil {
		return fmt.Errorf("open position must not carry a closeRecord")
	}
	for i := 1; i < len(p.History); i++ {
		if p.History[i].Timestamp.Before(p.History[i-1].Timestamp) {
			return fmt.Errorf("history out of order at index %d", i)
		}
	}
	return nil
}
