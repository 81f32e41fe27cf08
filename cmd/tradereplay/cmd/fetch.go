package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradereplay/config"
	"github.com/rustyeddy/tradereplay/market"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download futures klines from Binance to CSV",
	Long: `Download historical futures klines and save them as a CSV file that
run and compare can replay with --csv.

Example:
  tradereplay fetch --symbol XRPUSDT --timeframe 5m --start 2024-06-01 --end 2024-07-01 -o xrp-5m.csv`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

var (
	fetchSymbol    string
	fetchTimeframe string
	fetchStart     string
	fetchEnd       string
	fetchBaseURL   string
	fetchOutput    string
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fl := fetchCmd.Flags()
	fl.StringVarP(&fetchSymbol, "symbol", "s", "XRPUSDT", "symbol")
	fl.StringVarP(&fetchTimeframe, "timeframe", "t", "5m", "bar timeframe")
	fl.StringVar(&fetchStart, "start", "", "first day (YYYY-MM-DD) (required)")
	fl.StringVar(&fetchEnd, "end", "", "end day, exclusive (YYYY-MM-DD) (required)")
	fl.StringVar(&fetchBaseURL, "base-url", "", "override the futures REST endpoint")
	fl.StringVarP(&fetchOutput, "output", "o", "", "output CSV (default SYMBOL-TIMEFRAME.csv)")
	fetchCmd.MarkFlagRequired("start")
	fetchCmd.MarkFlagRequired("end")
}

func runFetch(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	data := config.DataConfig{
		Source:    "binance",
		Symbol:    fetchSymbol,
		Timeframe: fetchTimeframe,
		Start:     fetchStart,
		End:       fetchEnd,
		BaseURL:   fetchBaseURL,
	}
	if _, err := market.ParseTimeframe(data.Timeframe); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	series, err := loadSeries(ctx, data)
	if err != nil {
		return err
	}

	out := fetchOutput
	if out == "" {
		out = fmt.Sprintf("%s-%s.csv", fetchSymbol, fetchTimeframe)
	}
	if err := market.SaveCSV(out, series); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bars to %s\n", len(series), out)
	return nil
}
