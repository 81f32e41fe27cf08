package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/config"
	"github.com/rustyeddy/tradereplay/internal/logger"
	"github.com/rustyeddy/tradereplay/journal"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/pkg/id"
	"github.com/rustyeddy/tradereplay/replay"
	"github.com/rustyeddy/tradereplay/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay one agent over historical bars",
	Long: `Run a replay using settings from a config file, overridden by flags.

Ctrl-C stops the replay after the current bar; results so far are still
reported.

Examples:
  tradereplay run --config replay.yaml
  tradereplay run --csv bars.csv --agent orderflow --chart run.html
  tradereplay run --source binance --symbol XRPUSDT --timeframe 5m \
      --start 2024-06-01 --end 2024-07-01 --agent momentum --param threshold=0.8`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runFlags     replayFlags
	runAgent     string
	runParams    map[string]string
	runJournal   string
	runDBPath    string
	runTrades    string
	runEquity    string
	runDecisions string
	runChart     string
	runOrg       string
	runJSON      bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runFlags.register(runCmd)
	fl := runCmd.Flags()
	fl.StringVarP(&runAgent, "agent", "a", "", "agent name (see: tradereplay agents)")
	fl.StringToStringVarP(&runParams, "param", "p", nil, "agent parameter key=value (repeatable)")
	fl.StringVar(&runJournal, "journal", "", "journal type: none, csv or sqlite")
	fl.StringVar(&runDBPath, "db", "", "SQLite journal path (implies --journal sqlite)")
	fl.StringVar(&runTrades, "trades", "", "CSV trades file")
	fl.StringVar(&runEquity, "equity", "", "CSV equity file")
	fl.StringVar(&runDecisions, "decisions", "", "CSV decisions file")
	fl.StringVar(&runChart, "chart", "", "write an HTML chart to this path")
	fl.StringVar(&runOrg, "org", "", "write an Org-mode run report to this path")
	fl.BoolVar(&runJSON, "json", false, "print results as JSON")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	runFlags.apply(cmd, cfg)

	set := cmd.Flags().Changed
	if set("agent") {
		cfg.Agent.Type = runAgent
	}
	if len(runParams) > 0 {
		if cfg.Agent.Params == nil {
			cfg.Agent.Params = map[string]any{}
		}
		for k, v := range runParams {
			cfg.Agent.Params[k] = v
		}
	}
	if set("db") {
		cfg.Journal.DBPath = runDBPath
		if !set("journal") {
			cfg.Journal.Type = "sqlite"
		}
	}
	if set("journal") {
		cfg.Journal.Type = runJournal
	}
	if set("trades") {
		cfg.Journal.TradesFile = runTrades
	}
	if set("equity") {
		cfg.Journal.EquityFile = runEquity
	}
	if set("decisions") {
		cfg.Journal.DecisionsFile = runDecisions
	}
	if set("chart") {
		cfg.Report.ChartFile = runChart
	}
	if set("org") {
		cfg.Report.OrgFile = runOrg
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	series, err := loadSeries(ctx, cfg.Data)
	if err != nil {
		return err
	}

	a, err := agent.New(cfg.Agent.Type, cfg.Agent.Params)
	if err != nil {
		return err
	}
	if err := agent.Prepare(a, series); err != nil {
		return err
	}

	eng, err := replay.NewEngine(series, a, cfg.Options())
	if err != nil {
		return err
	}

	j, db, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	if j != nil {
		defer j.Close()
	}

	runID := id.New()
	if j != nil {
		rec := journal.NewRecorder(j, runID, cfg.Data.Symbol)
		rec.SkipHolds = cfg.Journal.SkipHolds
		rec.Attach(eng)
	}

	logger.Infof("[run] %s: agent %s, %d bars, starting at bar %d",
		runID, cfg.Agent.Type, len(series), eng.StartIndex(cfg.Run.StartBar))
	res, runErr := eng.Run(ctx, cfg.Run.Speed, cfg.Run.StartBar)

	rr := journal.NewRunRecord(runMeta(runID, cfg), res)
	if db != nil {
		if err := db.RecordRun(context.Background(), rr); err != nil {
			logger.Warnf("[run] record run: %v", err)
		}
	}
	if err := writeReports(cfg, series, res, rr); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Run ID: %s\n", runID)
		res.Print(out)
	}
	return runErr
}

func runMeta(runID string, cfg *config.Config) journal.RunMeta {
	params := "{}"
	if len(cfg.Agent.Params) > 0 {
		if b, err := json.Marshal(cfg.Agent.Params); err == nil {
			params = string(b)
		}
	}
	dataset := cfg.Data.CSVFile
	if cfg.Data.Source != "csv" {
		dataset = fmt.Sprintf("%s %s..%s", cfg.Data.Source, cfg.Data.Start, cfg.Data.End)
	}
	return journal.RunMeta{
		RunID:     runID,
		Symbol:    cfg.Data.Symbol,
		Timeframe: cfg.Data.Timeframe,
		Dataset:   dataset,
		Agent:     cfg.Agent.Type,
		Params:    params,
	}
}

func writeReports(cfg *config.Config, series market.Series, res replay.Results, rr journal.RunRecord) error {
	if path := cfg.Report.ChartFile; path != "" {
		title := fmt.Sprintf("%s %s %s", cfg.Data.Symbol, cfg.Data.Timeframe, cfg.Agent.Type)
		if err := report.WriteChartFile(path, title, series, res); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		rr.ChartPath = path
		logger.Infof("[run] chart written to %s", path)
	}
	if path := cfg.Report.OrgFile; path != "" {
		trades := make([]journal.TradeRecord, len(res.Trades))
		for i, t := range res.Trades {
			trades[i] = journal.TradeFromLedger(rr.RunID, cfg.Data.Symbol, t)
		}
		if err := rr.WriteOrgFile(path, trades); err != nil {
			return fmt.Errorf("write org report: %w", err)
		}
		logger.Infof("[run] org report written to %s", path)
	}
	return nil
}
