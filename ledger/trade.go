package ledger

import (
	"time"

	"github.com/rustyeddy/tradereplay/pkg/id"
)

// Close reasons.
const (
	ReasonSignal      = "signal"
	ReasonLiquidation = "liquidation"
)

// Trade is a closed position. Trades are never modified after they are
// appended to a Book.
type Trade struct {
	ID         string    `json:"id"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	Size       float64   `json:"size"`
	Leverage   float64   `json:"leverage"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnl_pct"`
	Fee        float64   `json:"fee"`
	Reason     string    `json:"reason"`
}

// Win reports whether the trade made money after fees. Breakeven is a loss.
func (t Trade) Win() bool { return t.PnL > 0 }

// Settle realizes p at exitPrice. Commission is charged on entry and exit
// of the notional. PnLPct is relative to initialCapital.
func Settle(p Position, exitPrice float64, exitTime time.Time, commission, initialCapital float64, reason string) Trade {
	fee := commission * p.Notional() * 2
	pnl := p.PnL(exitPrice) - fee

	var pct float64
	if initialCapital != 0 {
		pct = pnl / initialCapital * 100
	}

	return Trade{
		ID:         id.New(),
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		EntryTime:  p.EntryTime,
		ExitTime:   exitTime,
		Size:       p.Size,
		Leverage:   p.Leverage,
		PnL:        pnl,
		PnLPct:     pct,
		Fee:        fee,
		Reason:     reason,
	}
}
