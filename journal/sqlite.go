package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Journal backed by a single database file. It also stores
// run summaries and answers queries over past runs.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, run_id, symbol, side, size, leverage, entry_price, exit_price, open_time, close_time, realized_pl, pnl_pct, fee, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Symbol, t.Side, t.Size, t.Leverage, t.EntryPrice,
		t.ExitPrice, t.OpenTime.UTC(), t.CloseTime.UTC(), t.RealizedPL, t.PnLPct, t.Fee, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, balance, equity, unrealized)
		VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Time.UTC(), e.Balance, e.Equity, e.Unrealized,
	)
	return err
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(run_id, time, bar, price, decision, reasoning, position, unrealized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Time.UTC(), d.Bar, d.Price, d.Decision, d.Reasoning, d.Position, d.Unrealized,
	)
	return err
}

// RecordRun stores or replaces a run summary.
func (j *SQLite) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(run_id, created, symbol, timeframe, dataset, agent, params, status, start_time, end_time,
		 bars, trades, wins, losses, start_balance, end_balance, net_pl, return_pct, win_rate, profit_factor, max_dd_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Symbol, r.Timeframe, r.Dataset, r.Agent, r.Params, r.Status,
		r.Start.UTC(), r.End.UTC(), r.Bars, r.Trades, r.Wins, r.Losses, r.StartBalance, r.EndBalance,
		r.NetPL, r.ReturnPct, r.WinRate, r.ProfitFactor, r.MaxDDPct,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
