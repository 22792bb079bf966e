package market

import "fmt"

// PriceFetchError reports that no usable quote could be obtained for a symbol,
// after any retries the source applies.
type PriceFetchError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *PriceFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("price fetch %s: %s: %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("price fetch %s: %s", e.Symbol, e.Reason)
}

func (e *PriceFetchError) Unwrap() error { return e.Err }
