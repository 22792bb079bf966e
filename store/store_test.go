package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/livermore/position"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func openPosition(id string) *position.Position {
	terms := position.DefaultTerms()
	return &position.Position{
		ID:                      id,
		Symbol:                  "BMNR",
		Shares:                  1000,
		EntryPrice:              d("30"),
		EntryTimestamp:          t0,
		InitialCapital:          d("50000"),
		CommissionRate:          terms.CommissionRate,
		BorrowFeeAnnualRate:     terms.BorrowFeeAnnualRate,
		InitialMarginRatio:      terms.InitialMarginRatio,
		MaintenanceMarginRatio:  terms.MaintenanceMarginRatio,
		LiquidationMarginRatio:  terms.LiquidationMarginRatio,
		CashAfterOpenCommission: d("49850"),
		Status:                  position.StatusOpen,
		History: []position.Snapshot{
			{Timestamp: t0, Price: d("30"), UnrealizedPnl: d("0"), NetPnl: d("0"), MarginLevel: d("1.66")},
			{Timestamp: t0.Add(time.Hour), Price: d("31.5"), UnrealizedPnl: d("-1500"), NetPnl: d("-1500.27"), MarginLevel: d("1.53")},
			{Timestamp: t0.Add(2 * time.Hour), Price: d("29.25"), UnrealizedPnl: d("750"), NetPnl: d("749.45"), MarginLevel: d("1.73")},
		},
	}
}

func closed(p *position.Position, status position.Status, at time.Time) *position.Position {
	c := p.Clone()
	c.Status = status
	c.CloseRecord = &position.CloseRecord{
		ClosePrice:      d("25"),
		CloseTimestamp:  at,
		CloseCommission: d("125"),
		FinalEquity:     d("54659.25"),
		TotalReturnPct:  d("9.3185"),
	}
	return c
}

func mustJSON(t *testing.T, p *position.Position) string {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return string(data)
}

func TestLoadEmptySlot(t *testing.T) {
	s := newTestStore(t)

	p, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := openPosition("P1")

	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, mustJSON(t, want), mustJSON(t, got))
	require.Len(t, got.History, 3)
	for i := range want.History {
		assert.True(t, want.History[i].Timestamp.Equal(got.History[i].Timestamp))
		assert.True(t, want.History[i].Price.Equal(got.History[i].Price))
	}
}

func TestSaveWritesSchemaVersion(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(context.Background(), openPosition("P1")))

	data, err := os.ReadFile(filepath.Join(s.Dir(), slotFile))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, SchemaVersion, raw["schemaVersion"])
	assert.Equal(t, "OPEN", raw["status"])
	assert.Equal(t, "30", raw["entryPrice"])
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(context.Background(), openPosition("P1")))
	require.NoError(t, s.Save(context.Background(), openPosition("P1")))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{slotFile, archiveDir}, names)
}

func TestSaveRejectsFinalPosition(t *testing.T) {
	s := newTestStore(t)
	err := s.Save(context.Background(), closed(openPosition("P1"), position.StatusClosed, t0.Add(time.Hour)))
	assert.Error(t, err)
}

func TestLoadCorruptSlot(t *testing.T) {
	valid, err := json.Marshal(record{SchemaVersion: SchemaVersion, Position: openPosition("P1")})
	require.NoError(t, err)

	invalid := openPosition("P1")
	invalid.Shares = 0
	invalidData, err := json.Marshal(record{SchemaVersion: SchemaVersion, Position: invalid})
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   []byte
		reason string
	}{
		{"garbage", []byte("{not json"), "invalid JSON"},
		{"empty file", []byte{}, "invalid JSON"},
		{"truncated", valid[:len(valid)/2], "invalid JSON"},
		{"no schema version", []byte(`{"symbol":"BMNR"}`), "missing schemaVersion"},
		{"future schema", []byte(`{"schemaVersion":99,"symbol":"BMNR"}`), "unsupported schemaVersion"},
		{"empty record", []byte(`{"schemaVersion":1}`), "empty record"},
		{"fails validation", invalidData, "validation failed"},
		{"bad decimal", []byte(`{"schemaVersion":1,"symbol":"BMNR","entryPrice":"abc"}`), "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			path := filepath.Join(s.Dir(), slotFile)
			require.NoError(t, os.WriteFile(path, tt.data, 0644))

			p, err := s.Load(context.Background())
			require.Error(t, err)
			assert.Nil(t, p)

			var cse *position.CorruptStateError
			require.True(t, errors.As(err, &cse), "want CorruptStateError, got %T: %v", err, err)
			assert.Equal(t, path, cse.Path)
			assert.Contains(t, cse.Reason, tt.reason)
		})
	}
}

func TestFinalizeArchivesAndClearsSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := openPosition("P1")
	require.NoError(t, s.Save(ctx, p))

	closeAt := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
	final := closed(p, position.StatusClosed, closeAt)
	require.NoError(t, s.Finalize(ctx, final))

	_, err := os.Stat(filepath.Join(s.Dir(), slotFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = os.Stat(filepath.Join(s.Dir(), archiveDir, "20240111T090000.000000000Z.json"))
	assert.NoError(t, err)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	archived, err := s.Archive(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, mustJSON(t, final), mustJSON(t, archived[0]))
}

func TestFinalizeRejectsOpenPosition(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Finalize(context.Background(), openPosition("P1")))
}

func TestFinalizeIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := t0.Add(24 * time.Hour)

	first := closed(openPosition("P1"), position.StatusClosed, at)
	require.NoError(t, s.Finalize(ctx, first))

	// Same position again is a no-op.
	require.NoError(t, s.Finalize(ctx, first))

	other := closed(openPosition("P2"), position.StatusLiquidated, at)
	err := s.Finalize(ctx, other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already holds position P1")

	archived, err := s.Archive(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "P1", archived[0].ID)
}

func TestFailedFinalizeRestoresSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := t0.Add(24 * time.Hour)

	require.NoError(t, s.Finalize(ctx, closed(openPosition("P1"), position.StatusClosed, at)))

	p2 := openPosition("P2")
	require.NoError(t, s.Save(ctx, p2))
	before, err := os.ReadFile(filepath.Join(s.Dir(), slotFile))
	require.NoError(t, err)

	// The archive name for this close time is taken by P1.
	err = s.Finalize(ctx, closed(p2, position.StatusClosed, at))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already holds position P1")

	after, err := os.ReadFile(filepath.Join(s.Dir(), slotFile))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "P2", got.ID)
	assert.Equal(t, position.StatusOpen, got.Status)

	archived, err := s.Archive(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "P1", archived[0].ID)
}

func TestFailedFinalizeWithoutSlotLeavesNoSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := t0.Add(24 * time.Hour)

	require.NoError(t, s.Finalize(ctx, closed(openPosition("P1"), position.StatusClosed, at)))
	require.Error(t, s.Finalize(ctx, closed(openPosition("P2"), position.StatusClosed, at)))

	_, err := os.Stat(filepath.Join(s.Dir(), slotFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	p, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLoadCompletesInterruptedFinalize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	final := closed(openPosition("P1"), position.StatusLiquidated, t0.Add(time.Hour))
	require.NoError(t, writeRecord(filepath.Join(s.Dir(), slotFile), final))

	p, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	archived, err := s.Archive(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, position.StatusLiquidated, archived[0].Status)
}

func TestArchiveOrderedByCloseTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	late := closed(openPosition("LATE"), position.StatusClosed, t0.Add(72*time.Hour))
	early := closed(openPosition("EARLY"), position.StatusLiquidated, t0.Add(24*time.Hour))
	require.NoError(t, s.Finalize(ctx, late))
	require.NoError(t, s.Finalize(ctx, early))

	archived, err := s.Archive(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "EARLY", archived[0].ID)
	assert.Equal(t, "LATE", archived[1].ID)
}

func TestArchiveCorruptRecord(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(s.Dir(), archiveDir, "20240101T000000.000000000Z.json")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))

	_, err := s.Archive(context.Background())
	var cse *position.CorruptStateError
	assert.True(t, errors.As(err, &cse))
}

func TestWithLockExcludesOtherStores(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, nil)
	require.NoError(t, err)
	b, err := New(dir, nil)
	require.NoError(t, err)

	ran := false
	err = a.WithLock(context.Background(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()

		inner := b.WithLock(ctx, func() error {
			ran = true
			return nil
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)

	// Released afterwards.
	require.NoError(t, b.WithLock(context.Background(), func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestWithLockPropagatesError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithLock(context.Background(), func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)
}
