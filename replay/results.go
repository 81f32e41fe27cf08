package replay

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/ledger"
)

// Results summarizes a replay. DecisionLog leaves out HOLD entries; use
// Engine.State for the full log.
type Results struct {
	Status         Status             `json:"status"`
	InitialCapital float64            `json:"initial_capital"`
	BarsProcessed  int                `json:"bars_processed"`
	TotalTrades    int                `json:"total_trades"`
	Wins           int                `json:"wins"`
	Losses         int                `json:"losses"`
	WinRate        float64            `json:"win_rate"`
	TotalPnL       float64            `json:"total_pnl"`
	AvgPnL         float64            `json:"avg_pnl"`
	AvgWin         float64            `json:"avg_win"`
	AvgLoss        float64            `json:"avg_loss"`
	TotalFees      float64            `json:"total_fees"`
	Equity         float64            `json:"equity"`
	ReturnPct      float64            `json:"return_pct"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	OpenPosition   *ledger.Position   `json:"open_position,omitempty"`
	Trades         []ledger.Trade     `json:"trades"`
	EquityCurve    []EquityPoint      `json:"equity_curve"`
	DecisionLog    []DecisionLogEntry `json:"decision_log"`
}

// Results computes summary statistics from the current state.
func (e *Engine) Results() Results {
	return Summarize(e.State(), e.opts.InitialCapital)
}

// Summarize derives Results from a state snapshot.
func Summarize(st State, initialCapital float64) Results {
	r := Results{
		Status:         st.Status,
		InitialCapital: initialCapital,
		BarsProcessed:  len(st.DecisionLog),
		TotalTrades:    len(st.Trades),
		Equity:         st.Equity,
		OpenPosition:   st.Position,
		Trades:         st.Trades,
		EquityCurve:    st.EquityCurve,
		DecisionLog:    []DecisionLogEntry{},
	}

	var winSum, lossSum float64
	for _, t := range st.Trades {
		r.TotalPnL += t.PnL
		r.TotalFees += t.Fee
		if t.Win() {
			r.Wins++
			winSum += t.PnL
		} else {
			r.Losses++
			lossSum += t.PnL
		}
	}
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.TotalTrades) * 100
		r.AvgPnL = r.TotalPnL / float64(r.TotalTrades)
	}
	if r.Wins > 0 {
		r.AvgWin = winSum / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = lossSum / float64(r.Losses)
	}
	if initialCapital != 0 {
		r.ReturnPct = (r.Equity - initialCapital) / initialCapital * 100
	}
	r.MaxDrawdownPct = maxDrawdownPct(initialCapital, st.EquityCurve)

	for _, d := range st.DecisionLog {
		if d.Decision != agent.Hold {
			r.DecisionLog = append(r.DecisionLog, d)
		}
	}
	if r.Trades == nil {
		r.Trades = []ledger.Trade{}
	}
	if r.EquityCurve == nil {
		r.EquityCurve = []EquityPoint{}
	}
	return r
}

// maxDrawdownPct is the largest peak-to-trough fall of the equity curve,
// with the initial capital as the first peak.
func maxDrawdownPct(initial float64, curve []EquityPoint) float64 {
	peak := initial
	var worst float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// Print writes a human readable report.
func (r Results) Print(w io.Writer) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Replay Result")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Status:        %s\n", r.Status)
	fmt.Fprintf(w, "Bars:          %d\n", r.BarsProcessed)
	if n := len(r.EquityCurve); n > 0 {
		fmt.Fprintf(w, "Start:         %s\n", r.EquityCurve[0].Time.Format(time.RFC3339))
		fmt.Fprintf(w, "End:           %s\n", r.EquityCurve[n-1].Time.Format(time.RFC3339))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.TotalTrades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate)
	fmt.Fprintf(w, "Avg Win:       %.4f\n", r.AvgWin)
	fmt.Fprintf(w, "Avg Loss:      %.4f\n", r.AvgLoss)
	fmt.Fprintf(w, "Fees:          %.4f\n", r.TotalFees)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Initial:       %.2f\n", r.InitialCapital)
	fmt.Fprintf(w, "Equity:        %.2f\n", r.Equity)
	fmt.Fprintf(w, "Net PnL:       %.4f\n", r.TotalPnL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDrawdownPct)
	if r.OpenPosition != nil {
		fmt.Fprintf(w, "Open:          %s @ %.6f since %s\n",
			r.OpenPosition.Side, r.OpenPosition.EntryPrice, r.OpenPosition.EntryTime.Format(time.RFC3339))
	}
	fmt.Fprintln(w, "==================================================")
}
