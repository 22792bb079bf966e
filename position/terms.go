package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Terms are the brokerage rates fixed when a position is opened.
type Terms struct {
	CommissionRate         decimal.Decimal
	BorrowFeeAnnualRate    decimal.Decimal
	InitialMarginRatio     decimal.Decimal
	MaintenanceMarginRatio decimal.Decimal
	LiquidationMarginRatio decimal.Decimal
}

// DefaultTerms mirror Reg T style short terms on a hard-to-borrow stock.
func DefaultTerms() Terms {
	return Terms{
		CommissionRate:         decimal.RequireFromString("0.005"),
		BorrowFeeAnnualRate:    decimal.RequireFromString("0.08"),
		InitialMarginRatio:     decimal.RequireFromString("1.50"),
		MaintenanceMarginRatio: decimal.RequireFromString("1.25"),
		LiquidationMarginRatio: decimal.RequireFromString("1.10"),
	}
}

// Validate enforces 0 < liquidation < maintenance < initial and non-negative fees.
func (t Terms) Validate() error {
	if t.CommissionRate.IsNegative() {
		return fmt.Errorf("commission rate must not be negative, got %s", t.CommissionRate)
	}
	if t.BorrowFeeAnnualRate.IsNegative() {
		return fmt.Errorf("borrow fee rate must not be negative, got %s", t.BorrowFeeAnnualRate)
	}
	if !t.LiquidationMarginRatio.IsPositive() {
		return fmt.Errorf("liquidation margin ratio must be positive, got %s", t.LiquidationMarginRatio)
	}
	if !t.LiquidationMarginRatio.LessThan(t.MaintenanceMarginRatio) {
		return fmt.Errorf("liquidation margin ratio %s must be below maintenance %s",
			t.LiquidationMarginRatio, t.MaintenanceMarginRatio)
	}
	if !t.MaintenanceMarginRatio.LessThan(t.InitialMarginRatio) {
		return fmt.Errorf("maintenance margin ratio %s must be below initial %s",
			t.MaintenanceMarginRatio, t.InitialMarginRatio)
	}
	return nil
}
