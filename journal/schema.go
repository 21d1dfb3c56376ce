package journal

// Schema creates the journal tables. A NULL profit_factor means wins with
// no losses (unbounded).
const Schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	strategy TEXT NOT NULL,
	symbols TEXT NOT NULL,
	dataset TEXT NOT NULL DEFAULT '',
	config BLOB,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	initial_balance REAL NOT NULL,
	final_balance REAL NOT NULL,
	net_pl REAL NOT NULL,
	return_pct REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	max_dd_pct REAL NOT NULL,
	sharpe REAL NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	win_rate REAL NOT NULL,
	avg_win REAL NOT NULL,
	avg_loss REAL NOT NULL,
	profit_factor REAL,
	rejected INTEGER NOT NULL,
	org_path TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	size REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	pnl REAL NOT NULL,
	return_pct REAL NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	time DATETIME NOT NULL,
	equity REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
CREATE INDEX IF NOT EXISTS idx_runs_created ON backtest_runs(created);
`
