package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleTrade(id string, closeAt time.Time) TradeRecord {
	return TradeRecord{
		PositionID: id,
		Symbol:     "BMNR",
		Shares:     1000,
		EntryPrice: d("30"),
		ExitPrice:  d("25"),
		OpenTime:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		CloseTime:  closeAt,
		Commission: d("275"),
		BorrowFees: d("65.75"),
		RealizedPL: d("4659.25"),
		ReturnPct:  d("9.3185"),
		Reason:     ReasonClose,
	}
}
