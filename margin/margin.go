// Package margin holds the accounting rules for a short position: P&L, borrow
// fees, commissions, equity and margin level. Everything here is pure.
package margin

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/livermore/position"
	"github.com/shopspring/decimal"
)

var ErrInvalidPrice = errors.New("current price must be positive")

var (
	daysPerYear = decimal.NewFromInt(365)
	nanosPerDay = decimal.NewFromInt(int64(24 * time.Hour))
	hundred     = decimal.NewFromInt(100)

	// warningBand widens the maintenance ratio into the WARNING zone.
	warningBand = decimal.RequireFromString("1.1")
	// nearCallBand is the "one more tick" zone used by the house message.
	nearCallBand = decimal.RequireFromString("1.05")
	// quoteBand is the net P&L share of entry value that changes the trader's quote.
	quoteBand = decimal.RequireFromString("0.1")
)

// Metrics is the mark-to-market state of a position at one price and time.
type Metrics struct {
	At                   time.Time
	Price                decimal.Decimal
	PositionValueEntry   decimal.Decimal
	PositionValueCurrent decimal.Decimal
	UnrealizedPnl        decimal.Decimal
	PnlPct               decimal.Decimal
	DaysElapsed          decimal.Decimal
	BorrowFees           decimal.Decimal
	OpenCommission       decimal.Decimal
	TotalFees            decimal.Decimal
	NetPnl               decimal.Decimal
	Equity               decimal.Decimal
	MarginLevel          decimal.Decimal
}

// Snapshot converts metrics to a history entry.
func (m Metrics) Snapshot() position.Snapshot {
	return position.Snapshot{
		Timestamp:     m.At,
		Price:         m.Price,
		UnrealizedPnl: m.UnrealizedPnl,
		NetPnl:        m.NetPnl,
		MarginLevel:   m.MarginLevel,
	}
}

// UnrealizedPnl is positive when the price has fallen below entry.
func UnrealizedPnl(entry, current decimal.Decimal, shares int64) decimal.Decimal {
	return entry.Sub(current).Mul(decimal.NewFromInt(shares))
}

// DaysElapsed returns fractional days between from and to, never negative.
func DaysElapsed(from, to time.Time) decimal.Decimal {
	d := to.Sub(from)
	if d <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d)).Div(nanosPerDay)
}

// BorrowFees accrue on the entry notional, not on the marked value.
func BorrowFees(entryValue, annualRate, days decimal.Decimal) decimal.Decimal {
	daily := annualRate.Div(daysPerYear)
	return entryValue.Mul(daily).Mul(days)
}

// Compute marks p to price at now.
func Compute(p *position.Position, price decimal.Decimal, now time.Time) (Metrics, error) {
	if p == nil {
		return Metrics{}, fmt.Errorf("compute metrics: nil position")
	}
	if !price.IsPositive() {
		return Metrics{}, fmt.Errorf("compute metrics: %w (got %s)", ErrInvalidPrice, price)
	}
	if p.Shares <= 0 {
		return Metrics{}, fmt.Errorf("compute metrics: shares must be positive, got %d", p.Shares)
	}

	shares := decimal.NewFromInt(p.Shares)
	m := Metrics{
		At:                   now,
		Price:                price,
		PositionValueEntry:   shares.Mul(p.EntryPrice),
		PositionValueCurrent: shares.Mul(price),
		UnrealizedPnl:        UnrealizedPnl(p.EntryPrice, price, p.Shares),
		DaysElapsed:          DaysElapsed(p.EntryTimestamp, now),
	}
	if p.EntryPrice.IsPositive() {
		m.PnlPct = p.EntryPrice.Sub(price).Div(p.EntryPrice).Mul(hundred)
	}

	m.BorrowFees = BorrowFees(m.PositionValueEntry, p.BorrowFeeAnnualRate, m.DaysElapsed)
	m.OpenCommission = m.PositionValueEntry.Mul(p.CommissionRate)
	m.TotalFees = m.OpenCommission.Add(m.BorrowFees)

	// The open commission already left the cash baseline.
	m.NetPnl = m.UnrealizedPnl.Sub(m.BorrowFees)
	m.Equity = p.CashAfterOpenCommission.Add(m.UnrealizedPnl).Sub(m.BorrowFees)
	m.MarginLevel = m.Equity.Div(m.PositionValueCurrent)

	return m, nil
}

// Requirement is the capital needed to open a short.
type Requirement struct {
	PositionValue  decimal.Decimal
	RequiredMargin decimal.Decimal
	Commission     decimal.Decimal
	Total          decimal.Decimal
}

func Required(shares int64, price decimal.Decimal, terms position.Terms) Requirement {
	value := decimal.NewFromInt(shares).Mul(price)
	r := Requirement{
		PositionValue:  value,
		RequiredMargin: value.Mul(terms.InitialMarginRatio),
		Commission:     value.Mul(terms.CommissionRate),
	}
	r.Total = r.RequiredMargin.Add(r.Commission)
	return r
}

// Covers reports whether capital satisfies the requirement.
func (r Requirement) Covers(capital decimal.Decimal) bool {
	return capital.GreaterThanOrEqual(r.Total)
}

// Settlement is the final accounting when a position is bought back.
type Settlement struct {
	CloseCommission decimal.Decimal
	FinalEquity     decimal.Decimal
	RealizedPnl     decimal.Decimal
	TotalReturnPct  decimal.Decimal
}

// Settle charges the closing commission on the current notional.
func Settle(p *position.Position, m Metrics) Settlement {
	s := Settlement{CloseCommission: m.PositionValueCurrent.Mul(p.CommissionRate)}
	s.FinalEquity = m.Equity.Sub(s.CloseCommission)
	s.RealizedPnl = s.FinalEquity.Sub(p.InitialCapital)
	if p.InitialCapital.IsPositive() {
		s.TotalReturnPct = s.RealizedPnl.Div(p.InitialCapital).Mul(hundred)
	}
	return s
}

// CloseRecord builds the persisted record for a settlement.
func (s Settlement) CloseRecord(m Metrics) *position.CloseRecord {
	return &position.CloseRecord{
		ClosePrice:      m.Price,
		CloseTimestamp:  m.At,
		CloseCommission: s.CloseCommission,
		FinalEquity:     s.FinalEquity,
		TotalReturnPct:  s.TotalReturnPct,
	}
}

// Classify maps a margin level to a health flag. Intervals are half-open:
// a level exactly at a threshold belongs to the safer band.
func Classify(level decimal.Decimal, terms position.Terms) position.Health {
	switch {
	case level.LessThan(terms.LiquidationMarginRatio):
		return position.HealthLiquidated
	case level.LessThan(terms.MaintenanceMarginRatio):
		return position.HealthMarginCall
	case level.LessThan(terms.MaintenanceMarginRatio.Mul(warningBand)):
		return position.HealthWarning
	default:
		return position.HealthHealthy
	}
}

// HouseMessage is what the broker says about a margin level.
func HouseMessage(level decimal.Decimal, terms position.Terms) string {
	maint := terms.MaintenanceMarginRatio
	switch {
	case level.LessThan(terms.LiquidationMarginRatio):
		return "Liquidating your position now. No exceptions."
	case level.LessThan(maint):
		return "Margin call! Deposit funds now or we liquidate."
	case level.LessThan(maint.Mul(nearCallBand)):
		return "One more tick against you and you're getting a margin call."
	case level.LessThan(maint.Mul(warningBand)):
		return "We're watching this position closely."
	default:
		return "Position looks good. Keep monitoring it."
	}
}

// TraderQuote picks a Livermore line for the net P&L relative to the entry
// value. Bands are strict: exactly 10% either way stays in the middle tier.
func TraderQuote(netPnl, entryValue decimal.Decimal) string {
	ratio := decimal.Zero
	if entryValue.IsPositive() {
		ratio = netPnl.Div(entryValue)
	}
	switch {
	case ratio.GreaterThan(quoteBand):
		return "There is a time to go long, a time to go short, and a time to go fishing. Consider your exit!"
	case ratio.LessThan(quoteBand.Neg()):
		return "The most important rule of trading is to play great defense, not great offense."
	default:
		return "It was never my thinking that made the big money for me. It always was my sitting."
	}
}
