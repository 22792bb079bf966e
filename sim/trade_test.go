package sim

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/livermore/journal"
	"github.com/rustyeddy/livermore/position"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeRecordMatchesJournalMirror(t *testing.T) {
	f := newFixture(t)
	f.price("30")
	f.open(t, 1000, "50000")
	f.clock.Advance(10 * 24 * time.Hour)
	f.price("25")

	rep, err := f.engine.Close(context.Background())
	require.NoError(t, err)
	require.Len(t, f.journal.trades, 1)

	hist, err := f.engine.History(context.Background())
	require.NoError(t, err)

	recs, err := TradeRecords(hist)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	got, want := recs[0], f.journal.trades[0]
	assert.Equal(t, rep.Position.ID, got.PositionID)
	assert.Equal(t, journal.ReasonClose, got.Reason)
	assert.True(t, want.Commission.Equal(got.Commission))
	assertDec(t, want.BorrowFees.String(), got.BorrowFees)
	assertDec(t, want.RealizedPL.String(), got.RealizedPL)
	assert.True(t, want.CloseTime.Equal(got.CloseTime))
}

func TestTradeRecordRejectsOpenPosition(t *testing.T) {
	_, err := TradeRecord(&position.Position{Status: position.StatusOpen})
	assert.Error(t, err)

	_, err = TradeRecord(nil)
	assert.Error(t, err)

	_, err = TradeRecords([]*position.Position{{Status: position.StatusOpen}})
	assert.Error(t, err)
}
