package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MaxSanePrice rejects quotes that are obviously garbage (bad scaling, corrupt payloads).
var MaxSanePrice = decimal.NewFromInt(1_000_000)

// Quote is the last traded price for a symbol.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// PriceSource supplies the current market price for a symbol. Implementations
// return a *PriceFetchError when no usable quote could be obtained.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (Quote, error)
}

// CheckPrice validates a quote price before it is used for accounting.
func CheckPrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return fmt.Errorf("price must be positive, got %s", p)
	}
	if p.GreaterThanOrEqual(MaxSanePrice) {
		return fmt.Errorf("price %s exceeds sanity threshold %s", p, MaxSanePrice)
	}
	return nil
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// QuoteStore holds the latest quote per symbol. It doubles as a PriceSource
// for offline runs and tests.
type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	now    func() time.Time
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote), now: time.Now}
}

// StaticSource returns a QuoteStore primed with a single fixed price.
func StaticSource(symbol string, price decimal.Decimal) *QuoteStore {
	qs := NewQuoteStore()
	qs.Set(Quote{Symbol: symbol, Price: price})
	return qs
}

func (qs *QuoteStore) Set(q Quote) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	q.Symbol = NormalizeSymbol(q.Symbol)
	qs.quotes[q.Symbol] = q
}

func (qs *QuoteStore) Get(symbol string) (Quote, bool) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	q, ok := qs.quotes[NormalizeSymbol(symbol)]
	return q, ok
}

// GetPrice implements PriceSource. Quotes stored without a time are stamped
// with the current wall clock.
func (qs *QuoteStore) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, &PriceFetchError{Symbol: symbol, Reason: "canceled", Err: err}
	}
	q, ok := qs.Get(symbol)
	if !ok {
		return Quote{}, &PriceFetchError{Symbol: symbol, Reason: "no quote available"}
	}
	if err := CheckPrice(q.Price); err != nil {
		return Quote{}, &PriceFetchError{Symbol: symbol, Reason: "invalid quote", Err: err}
	}
	if q.Time.IsZero() {
		q.Time = qs.now()
	}
	return q, nil
}

// FixedSource quotes the same price for every symbol. It backs offline runs
// where the caller supplies the price.
type FixedSource struct {
	Price decimal.Decimal
	Now   func() time.Time
}

func (f FixedSource) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, &PriceFetchError{Symbol: symbol, Reason: "canceled", Err: err}
	}
	if err := CheckPrice(f.Price); err != nil {
		return Quote{}, &PriceFetchError{Symbol: symbol, Reason: "invalid quote", Err: err}
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return Quote{Symbol: NormalizeSymbol(symbol), Price: f.Price, Time: now()}, nil
}
