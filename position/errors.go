package position

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNoActivePosition = errors.New("no active position")
	ErrAlreadyOpen      = errors.New("a position is already open")
	ErrInvalidOrder     = errors.New("invalid order")
)

// InsufficientCapitalError rejects an open whose capital cannot cover the
// initial margin plus the opening commission.
type InsufficientCapitalError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
	// MaxShares is the largest short the available capital could open.
	MaxShares int64
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("insufficient capital: required %s, available %s (shortfall %s, max %d shares)",
		e.Required.StringFixed(2), e.Available.StringFixed(2), e.Shortfall().StringFixed(2), e.MaxShares)
}

func (e *InsufficientCapitalError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

// CorruptStateError means a persisted record exists but cannot be trusted.
// It is never interpreted as "no position".
type CorruptStateError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptStateError) Error() string {
	msg := fmt.Sprintf("corrupt state in %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptStateError) Unwrap() error { return e.Err }
