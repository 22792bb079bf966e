package journal

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
}

func TestSQLiteReopenKeepsRows(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.RecordTrade(sampleTrade("P1", time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, j.Close())

	again, err := NewSQLite(path)
	require.NoError(t, err)
	defer again.Close()

	trades, err := again.ListTrades()
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestSQLiteDecimalsStoredAsText(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	rec := sampleTrade("P1", time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC))
	rec.RealizedPL = d("0.1")
	require.NoError(t, j.RecordTrade(rec))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var pl, kind string
	err = db.QueryRow(`SELECT realized_pl, typeof(realized_pl) FROM trades WHERE position_id = ?`, "P1").Scan(&pl, &kind)
	require.NoError(t, err)
	assert.Equal(t, "0.1", pl)
	assert.Equal(t, "text", kind)
}

func TestSQLiteRecordTradeReplaces(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	at := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
	rec := sampleTrade("P1", at)
	require.NoError(t, j.RecordTrade(rec))

	rec.Reason = ReasonLiquidation
	require.NoError(t, j.RecordTrade(rec))

	trades, err := j.ListTrades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonLiquidation, trades[0].Reason)
}
