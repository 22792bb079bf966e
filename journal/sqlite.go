package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(position_id, symbol, shares, entry_price, exit_price, open_time, close_time,
		 commission, borrow_fees, realized_pl, return_pct, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PositionID, t.Symbol, t.Shares, t.EntryPrice, t.ExitPrice,
		t.OpenTime.UTC(), t.CloseTime.UTC(),
		t.Commission, t.BorrowFees, t.RealizedPL, t.ReturnPct, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(position_id, time, price, equity, unrealized_pnl, net_pnl, margin_level, health)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PositionID, e.Time.UTC(), e.Price, e.Equity, e.UnrealizedPnl, e.NetPnl, e.MarginLevel, e.Health,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
