package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `trade_id, run_id, symbol, side, size, leverage, entry_price, exit_price, open_time, close_time, realized_pl, pnl_pct, fee, reason`

const runColumns = `run_id, created, symbol, timeframe, dataset, agent, params, status, start_time, end_time,
	bars, trades, wins, losses, start_balance, end_balance, net_pl, return_pct, win_rate, profit_factor, max_dd_pct`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.TradeID,
		&rec.RunID,
		&rec.Symbol,
		&rec.Side,
		&rec.Size,
		&rec.Leverage,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPL,
		&rec.PnLPct,
		&rec.Fee,
		&rec.Reason,
	)
	return rec, err
}

func scanRun(s scanner) (RunRecord, error) {
	var r RunRecord
	err := s.Scan(
		&r.RunID, &r.Created, &r.Symbol, &r.Timeframe, &r.Dataset, &r.Agent, &r.Params, &r.Status,
		&r.Start, &r.End, &r.Bars, &r.Trades, &r.Wins, &r.Losses, &r.StartBalance, &r.EndBalance,
		&r.NetPL, &r.ReturnPct, &r.WinRate, &r.ProfitFactor, &r.MaxDDPct,
	)
	return r, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(ctx context.Context, tradeID string) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesByRun returns a run's trades in close order.
func (j *SQLite) ListTradesByRun(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY close_time ASC, trade_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanTrade)
}

// ListTradesClosedBetween returns trades of any run whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanTrade)
}

func (j *SQLite) ListEquityByRun(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, time, balance, equity, unrealized
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, func(s scanner) (EquitySnapshot, error) {
		var e EquitySnapshot
		err := s.Scan(&e.RunID, &e.Time, &e.Balance, &e.Equity, &e.Unrealized)
		return e, err
	})
}

func (j *SQLite) ListDecisionsByRun(ctx context.Context, runID string) ([]DecisionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, time, bar, price, decision, reasoning, position, unrealized
		FROM decisions
		WHERE run_id = ?
		ORDER BY bar ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, func(s scanner) (DecisionRecord, error) {
		var d DecisionRecord
		err := s.Scan(&d.RunID, &d.Time, &d.Bar, &d.Price, &d.Decision, &d.Reasoning, &d.Position, &d.Unrealized)
		return d, err
	})
}

func (j *SQLite) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, fmt.Errorf("run %q not found", runID)
		}
		return RunRecord{}, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (j *SQLite) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY created DESC, run_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanRun)
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
