// journal/schema.go
package journal

// Money columns are TEXT so decimals survive without float rounding.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	shares INTEGER NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	commission TEXT NOT NULL,
	borrow_fees TEXT NOT NULL,
	realized_pl TEXT NOT NULL,
	return_pct TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	position_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	price TEXT NOT NULL,
	equity TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	net_pnl TEXT NOT NULL,
	margin_level TEXT NOT NULL,
	health TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_position_time ON equity(position_id, time);
`
