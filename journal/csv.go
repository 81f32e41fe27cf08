package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader    = []string{"run_id", "trade_id", "symbol", "side", "size", "leverage", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "pnl_pct", "fee", "reason"}
	equityHeader   = []string{"run_id", "time", "balance", "equity", "unrealized"}
	decisionHeader = []string{"run_id", "time", "bar", "price", "decision", "reasoning", "position", "unrealized"}
)

// CSVJournal writes one file per record kind. Rows are flushed as they
// are written so a crashed run still leaves a usable trail.
type CSVJournal struct {
	trades, equity, decisions *csv.Writer
	files                     []*os.File
}

// NewCSV creates (truncating) the trade and equity files. decisionsPath
// may be empty to skip decisions.
func NewCSV(tradesPath, equityPath, decisionsPath string) (*CSVJournal, error) {
	j := &CSVJournal{}
	var err error

	if j.trades, err = j.open(tradesPath, tradeHeader); err != nil {
		j.Close()
		return nil, err
	}
	if j.equity, err = j.open(equityPath, equityHeader); err != nil {
		j.Close()
		return nil, err
	}
	if decisionsPath != "" {
		if j.decisions, err = j.open(decisionsPath, decisionHeader); err != nil {
			j.Close()
			return nil, err
		}
	}
	return j, nil
}

func (j *CSVJournal) open(path string, header []string) (*csv.Writer, error) {
	fh, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	j.files = append(j.files, fh)
	w := csv.NewWriter(fh)
	if err := write(w, header); err != nil {
		return nil, err
	}
	return w, nil
}

func write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return write(j.trades, []string{
		t.RunID,
		t.TradeID,
		t.Symbol,
		t.Side,
		f(t.Size),
		f(t.Leverage),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPL),
		f(t.PnLPct),
		f(t.Fee),
		t.Reason,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return write(j.equity, []string{
		e.RunID,
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.Unrealized),
	})
}

func (j *CSVJournal) RecordDecision(d DecisionRecord) error {
	if j.decisions == nil {
		return nil
	}
	return write(j.decisions, []string{
		d.RunID,
		d.Time.Format(time.RFC3339),
		strconv.Itoa(d.Bar),
		f(d.Price),
		d.Decision,
		d.Reasoning,
		d.Position,
		f(d.Unrealized),
	})
}

func (j *CSVJournal) Close() error {
	var first error
	for _, w := range []*csv.Writer{j.trades, j.equity, j.decisions} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil && first == nil {
			first = err
		}
	}
	for _, fh := range j.files {
		if err := fh.Close(); err != nil && first == nil {
			first = err
		}
	}
	j.files = nil
	return first
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
