package margin

import (
	"github.com/rustyeddy/livermore/position"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// MaxShares is the largest short that capital can open at price: each share
// needs the initial margin plus the opening commission.
func MaxShares(capital, price decimal.Decimal, terms position.Terms) int64 {
	if !capital.IsPositive() || !price.IsPositive() {
		return 0
	}
	perShare := price.Mul(terms.InitialMarginRatio.Add(terms.CommissionRate))
	return capital.Div(perShare).Floor().IntPart()
}

// TriggerPrice is the price at which the margin level of p would equal level,
// holding the borrow fees accrued as of m fixed. Any higher price puts the
// level below it.
func TriggerPrice(p *position.Position, m Metrics, level decimal.Decimal) decimal.Decimal {
	if p == nil || p.Shares <= 0 || !level.IsPositive() {
		return decimal.Zero
	}
	shares := decimal.NewFromInt(p.Shares)
	base := p.CashAfterOpenCommission.Add(m.PositionValueEntry).Sub(m.BorrowFees)
	return base.Div(shares.Mul(level.Add(one)))
}

// Triggers are the prices that move a position into the margin call and
// liquidation bands.
type Triggers struct {
	MarginCall  decimal.Decimal
	Liquidation decimal.Decimal
}

func TriggersFor(p *position.Position, m Metrics) Triggers {
	return Triggers{
		MarginCall:  TriggerPrice(p, m, p.MaintenanceMarginRatio),
		Liquidation: TriggerPrice(p, m, p.LiquidationMarginRatio),
	}
}
