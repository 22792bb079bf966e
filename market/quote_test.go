package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPrice(t *testing.T) {
	tests := []struct {
		name    string
		price   decimal.Decimal
		wantErr bool
	}{
		{"positive", decimal.RequireFromString("30.25"), false},
		{"zero", decimal.Zero, true},
		{"negative", decimal.NewFromInt(-1), true},
		{"at threshold", decimal.NewFromInt(1_000_000), true},
		{"just below threshold", decimal.RequireFromString("999999.99"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPrice(tt.price)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuoteStoreGetPrice(t *testing.T) {
	qs := NewQuoteStore()
	fixed := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	qs.now = func() time.Time { return fixed }

	qs.Set(Quote{Symbol: "bmnr", Price: decimal.NewFromInt(30)})

	q, err := qs.GetPrice(context.Background(), " BMNR ")
	require.NoError(t, err)
	assert.Equal(t, "BMNR", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(30)))
	assert.True(t, q.Time.Equal(fixed))
}

func TestQuoteStoreMissingSymbol(t *testing.T) {
	qs := NewQuoteStore()

	_, err := qs.GetPrice(context.Background(), "NOPE")
	require.Error(t, err)

	var pfe *PriceFetchError
	require.True(t, errors.As(err, &pfe))
	assert.Equal(t, "NOPE", pfe.Symbol)
	assert.Contains(t, err.Error(), "no quote available")
}

func TestQuoteStoreRejectsInsanePrice(t *testing.T) {
	qs := StaticSource("BMNR", decimal.Zero)

	_, err := qs.GetPrice(context.Background(), "BMNR")
	var pfe *PriceFetchError
	require.True(t, errors.As(err, &pfe))
	assert.Equal(t, "invalid quote", pfe.Reason)
}

func TestQuoteStoreCanceledContext(t *testing.T) {
	qs := StaticSource("BMNR", decimal.NewFromInt(30))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := qs.GetPrice(ctx, "BMNR")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFixedSource(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	src := FixedSource{Price: decimal.RequireFromString("41"), Now: func() time.Time { return at }}

	for _, sym := range []string{"BMNR", "tsla"} {
		q, err := src.GetPrice(context.Background(), sym)
		require.NoError(t, err)
		assert.Equal(t, NormalizeSymbol(sym), q.Symbol)
		assert.True(t, q.Price.Equal(decimal.NewFromInt(41)))
		assert.True(t, q.Time.Equal(at))
	}

	_, err := FixedSource{Price: decimal.Zero}.GetPrice(context.Background(), "BMNR")
	var pfe *PriceFetchError
	require.True(t, errors.As(err, &pfe))
	assert.Equal(t, "invalid quote", pfe.Reason)
}
