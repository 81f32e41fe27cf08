package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	dataset TEXT NOT NULL,
	agent TEXT NOT NULL,
	params TEXT NOT NULL,
	status TEXT NOT NULL,
	start_time DATETIME,
	end_time DATETIME,
	bars INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	start_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	net_pl REAL NOT NULL,
	return_pct REAL NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL NOT NULL,
	max_dd_pct REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	size REAL NOT NULL,
	leverage REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	pnl_pct REAL NOT NULL,
	fee REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	unrealized REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	bar INTEGER NOT NULL,
	price REAL NOT NULL,
	decision TEXT NOT NULL,
	reasoning TEXT NOT NULL,
	position TEXT NOT NULL,
	unrealized REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, close_time);
CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, time);
CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id, bar);
`
