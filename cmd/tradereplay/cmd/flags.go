package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradereplay/config"
	"github.com/rustyeddy/tradereplay/internal/logger"
	"github.com/rustyeddy/tradereplay/journal"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/market/binance"
)

// replayFlags are the data and account flags shared by run and compare.
// A flag only overrides the config when it is set.
type replayFlags struct {
	source    string
	csvFile   string
	symbol    string
	timeframe string
	start     string
	end       string

	capital    float64
	size       float64
	leverage   float64
	commission float64
	speed      float64
	startBar   int
	warmup     int
}

func (f *replayFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.source, "source", "", "bar source: csv or binance")
	fl.StringVar(&f.csvFile, "csv", "", "CSV file of time,open,high,low,close,volume (implies --source csv)")
	fl.StringVarP(&f.symbol, "symbol", "s", "", "symbol, e.g. XRPUSDT")
	fl.StringVarP(&f.timeframe, "timeframe", "t", "", "bar timeframe, e.g. 5m")
	fl.StringVar(&f.start, "start", "", "first day (YYYY-MM-DD)")
	fl.StringVar(&f.end, "end", "", "end day, exclusive (YYYY-MM-DD)")

	fl.Float64Var(&f.capital, "capital", 0, "initial capital")
	fl.Float64Var(&f.size, "size", 0, "margin per position")
	fl.Float64Var(&f.leverage, "leverage", 0, "leverage multiplier")
	fl.Float64Var(&f.commission, "commission", 0, "commission rate per side")
	fl.Float64Var(&f.speed, "speed", 0, "bars per second (0 = instant)")
	fl.IntVar(&f.startBar, "start-bar", 0, "first bar index to replay")
	fl.IntVar(&f.warmup, "warmup", 0, "bars skipped before the first decision (default min(500, bars/5))")
}

func (f *replayFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed

	if set("source") {
		cfg.Data.Source = f.source
	}
	if set("csv") {
		cfg.Data.CSVFile = f.csvFile
		if !set("source") {
			cfg.Data.Source = "csv"
		}
	}
	if set("symbol") {
		cfg.Data.Symbol = f.symbol
	}
	if set("timeframe") {
		cfg.Data.Timeframe = f.timeframe
	}
	if set("start") {
		cfg.Data.Start = f.start
	}
	if set("end") {
		cfg.Data.End = f.end
	}
	if set("capital") {
		cfg.Run.InitialCapital = f.capital
	}
	if set("size") {
		cfg.Run.PositionSize = f.size
	}
	if set("leverage") {
		cfg.Run.Leverage = f.leverage
	}
	if set("commission") {
		cfg.Run.Commission = f.commission
	}
	if set("speed") {
		cfg.Run.Speed = f.speed
	}
	if set("start-bar") {
		cfg.Run.StartBar = f.startBar
	}
	if set("warmup") {
		w := f.warmup
		cfg.Run.Warmup = &w
	}
}

func openSource(cfg config.DataConfig) (market.Source, error) {
	switch cfg.Source {
	case "csv":
		return market.CSVSource{Path: cfg.CSVFile}, nil
	case "binance":
		return binance.New(binance.Config{BaseURL: cfg.BaseURL, MaxRetries: 3}), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Source)
	}
}

func loadSeries(ctx context.Context, cfg config.DataConfig) (market.Series, error) {
	src, err := openSource(cfg)
	if err != nil {
		return nil, err
	}
	req, err := cfg.Request()
	if err != nil {
		return nil, err
	}
	series, err := src.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars from %s: %w", src.Name(), err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no bars from %s for %s %s", src.Name(), cfg.Symbol, cfg.Timeframe)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	logger.Infof("[data] %d bars from %s (%s .. %s)", len(series), src.Name(),
		series[0].Time.Format("2006-01-02 15:04"), series[len(series)-1].Time.Format("2006-01-02 15:04"))
	return series, nil
}

// openJournal returns nil, nil for type "none". The SQLite journal is
// also returned on its own so runs can be recorded.
func openJournal(cfg config.JournalConfig) (journal.Journal, *journal.SQLite, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil, nil
	case "csv":
		j, err := journal.NewCSV(cfg.TradesFile, cfg.EquityFile, cfg.DecisionsFile)
		if err != nil {
			return nil, nil, err
		}
		return j, nil, nil
	case "sqlite":
		j, err := journal.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return j, j, nil
	default:
		return nil, nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}
