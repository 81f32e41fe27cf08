package journal

import (
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/rustyeddy/tradereplay/replay"
)

// RunRecord mirrors the runs table.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Created   time.Time `json:"created"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Dataset   string    `json:"dataset"`
	Agent     string    `json:"agent"`
	Params    string    `json:"params"` // agent params as JSON
	Status    string    `json:"status"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Bars  int       `json:"bars"`

	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`

	StartBalance float64 `json:"start_balance"`
	EndBalance   float64 `json:"end_balance"`

	NetPL        float64 `json:"net_pl"`
	ReturnPct    float64 `json:"return_pct"`
	WinRate      float64 `json:"win_rate"` // percent
	ProfitFactor float64 `json:"profit_factor"`
	MaxDDPct     float64 `json:"max_dd_pct"`

	// report only, not stored
	ChartPath string   `json:"-"`
	Notes     []string `json:"-"`
}

// RunMeta is what a caller knows about a run besides its results.
type RunMeta struct {
	RunID     string
	Symbol    string
	Timeframe string
	Dataset   string
	Agent     string
	Params    string
}

// NewRunRecord summarizes res under meta.
func NewRunRecord(meta RunMeta, res replay.Results) RunRecord {
	r := RunRecord{
		RunID:        meta.RunID,
		Created:      time.Now().UTC(),
		Symbol:       meta.Symbol,
		Timeframe:    meta.Timeframe,
		Dataset:      meta.Dataset,
		Agent:        meta.Agent,
		Params:       meta.Params,
		Status:       res.Status.String(),
		Bars:         res.BarsProcessed,
		Trades:       res.TotalTrades,
		Wins:         res.Wins,
		Losses:       res.Losses,
		StartBalance: res.InitialCapital,
		EndBalance:   res.Equity,
		NetPL:        res.TotalPnL,
		ReturnPct:    res.ReturnPct,
		WinRate:      res.WinRate,
		ProfitFactor: profitFactor(res),
		MaxDDPct:     res.MaxDrawdownPct,
	}
	if r.Params == "" {
		r.Params = "{}"
	}
	if n := len(res.EquityCurve); n > 0 {
		r.Start = res.EquityCurve[0].Time.UTC()
		r.End = res.EquityCurve[n-1].Time.UTC()
	}
	return r
}

// profitFactor is gross profit over gross loss; 0 when there were no losses.
func profitFactor(res replay.Results) float64 {
	var gain, loss float64
	for _, t := range res.Trades {
		if t.PnL > 0 {
			gain += t.PnL
		} else {
			loss -= t.PnL
		}
	}
	if loss == 0 {
		return 0
	}
	return gain / loss
}

var runOrgFuncs = template.FuncMap{
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var runOrg = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// WriteOrg renders the run as an Org-mode entry.
func (r RunRecord) WriteOrg(w io.Writer) error {
	return runOrg.Execute(w, r)
}

// WriteOrgFile writes the Org entry, followed by trades, to path.
func (r RunRecord) WriteOrgFile(path string, trades []TradeRecord) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteOrg(fh); err != nil {
		fh.Close()
		return fmt.Errorf("render org: %w", err)
	}
	if len(trades) > 0 {
		if _, err := io.WriteString(fh, "\n** Trades\n"+FormatTradesOrg(trades)+"\n"); err != nil {
			fh.Close()
			return err
		}
	}
	return fh.Close()
}

const RunOrgTemplate = `* REPLAY: {{.Agent}} {{.Symbol}} {{if .Timeframe}}{{.Timeframe}}{{else}}(timeframe?){{end}}
:PROPERTIES:
:RUN_ID:      {{.RunID}}
:AGENT:       {{.Agent}}
:SYMBOL:      {{.Symbol}}
:TIMEFRAME:   {{.Timeframe}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:STATUS:      {{.Status}}
:START_DATE:  {{.Start.Format "2006-01-02 15:04"}}
:END_DATE:    {{.End.Format "2006-01-02 15:04"}}
:BARS:        {{.Bars}}
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:NET_PL:      {{printf "%.4f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" .WinRate}}
:PROFIT_FAC:  {{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(n/a){{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Agent Parameters
#+begin_src json
{{.Params}}
#+end_src

** Performance Summary
- Net P/L:          *{{printf "%.4f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDDPct}}%*
- Win Rate:         *{{printf "%.2f" .WinRate}}%*

** Equity Curve
{{- if .ChartPath }}
[[file:{{.ChartPath}}]]
{{- else }}
# no chart rendered for this run
{{- end }}

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
