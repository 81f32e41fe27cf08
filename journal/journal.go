// Package journal persists the audit trail of replays: trades, equity
// snapshots, decisions and run summaries.
package journal

import (
	"time"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/ledger"
	"github.com/rustyeddy/tradereplay/replay"
)

type TradeRecord struct {
	RunID      string    `json:"run_id"`
	TradeID    string    `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Size       float64   `json:"size"`
	Leverage   float64   `json:"leverage"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	OpenTime   time.Time `json:"open_time"`
	CloseTime  time.Time `json:"close_time"`
	RealizedPL float64   `json:"realized_pl"`
	PnLPct     float64   `json:"pnl_pct"`
	Fee        float64   `json:"fee"`
	Reason     string    `json:"reason"`
}

// EquitySnapshot is account state after one bar. Balance is realized,
// Equity is marked to market.
type EquitySnapshot struct {
	RunID      string    `json:"run_id"`
	Time       time.Time `json:"time"`
	Balance    float64   `json:"balance"`
	Equity     float64   `json:"equity"`
	Unrealized float64   `json:"unrealized"`
}

type DecisionRecord struct {
	RunID      string    `json:"run_id"`
	Time       time.Time `json:"time"`
	Bar        int       `json:"bar"`
	Price      float64   `json:"price"`
	Decision   string    `json:"decision"`
	Reasoning  string    `json:"reasoning"`
	Position   string    `json:"position"`
	Unrealized float64   `json:"unrealized"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordDecision(DecisionRecord) error
	Close() error
}

func TradeFromLedger(runID, symbol string, t ledger.Trade) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		TradeID:    t.ID,
		Symbol:     symbol,
		Side:       string(t.Side),
		Size:       t.Size,
		Leverage:   t.Leverage,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		OpenTime:   t.EntryTime.UTC(),
		CloseTime:  t.ExitTime.UTC(),
		RealizedPL: t.PnL,
		PnLPct:     t.PnLPct,
		Fee:        t.Fee,
		Reason:     t.Reason,
	}
}

// Recorder feeds a replay's observer callbacks into a Journal.
type Recorder struct {
	j      Journal
	runID  string
	symbol string

	// SkipHolds drops HOLD decisions; equity is still recorded every bar.
	SkipHolds bool
}

func NewRecorder(j Journal, runID, symbol string) *Recorder {
	return &Recorder{j: j, runID: runID, symbol: symbol}
}

// Attach registers the recorder on e.
func (r *Recorder) Attach(e *replay.Engine) {
	e.OnBar(r.OnBar)
	e.OnTrade(r.OnTrade)
}

func (r *Recorder) OnBar(ev replay.BarEvent) error {
	en := ev.Entry
	err := r.j.RecordEquity(EquitySnapshot{
		RunID:      r.runID,
		Time:       en.Time.UTC(),
		Balance:    ev.Cash,
		Equity:     ev.Equity,
		Unrealized: en.UnrealizedPnL,
	})
	if err != nil {
		return err
	}
	if r.SkipHolds && en.Decision == agent.Hold {
		return nil
	}
	return r.j.RecordDecision(DecisionRecord{
		RunID:      r.runID,
		Time:       en.Time.UTC(),
		Bar:        en.Bar,
		Price:      en.Price,
		Decision:   en.Decision.String(),
		Reasoning:  en.Reasoning,
		Position:   string(en.Position),
		Unrealized: en.UnrealizedPnL,
	})
}

func (r *Recorder) OnTrade(t ledger.Trade) error {
	return r.j.RecordTrade(TradeFromLedger(r.runID, r.symbol, t))
}
