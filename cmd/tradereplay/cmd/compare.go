package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/replay"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Replay several agents over the same bars",
	Long: `Run each agent over the same series concurrently, one engine per agent,
and print their results side by side. Agents use their default parameters.

Example:
  tradereplay compare --csv bars.csv --agents noop,momentum,orderflow`,
	Args: cobra.NoArgs,
	RunE: runCompare,
}

var (
	compareFlags  replayFlags
	compareAgents []string
	compareJSON   bool
)

func init() {
	rootCmd.AddCommand(compareCmd)

	compareFlags.register(compareCmd)
	compareCmd.Flags().StringSliceVar(&compareAgents, "agents", []string{"noop", "momentum", "orderflow"}, "agents to compare")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "print outcomes as JSON")
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	compareFlags.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	series, err := loadSeries(ctx, cfg.Data)
	if err != nil {
		return err
	}

	contenders := make([]replay.Contender, 0, len(compareAgents))
	for _, name := range compareAgents {
		name = strings.TrimSpace(name)
		var params map[string]any
		if name == cfg.Agent.Type {
			params = cfg.Agent.Params
		}
		a, err := agent.New(name, params)
		if err != nil {
			return err
		}
		contenders = append(contenders, replay.Contender{Name: name, Agent: a})
	}

	outcomes, err := replay.Compare(ctx, series, cfg.Options(), cfg.Run.StartBar, contenders)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if compareJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	fmt.Fprintf(out, "%-12s %-11s %7s %6s %9s %10s %10s %9s\n",
		"AGENT", "STATUS", "TRADES", "WIN%", "PNL", "EQUITY", "RETURN%", "MAXDD%")
	for _, o := range outcomes {
		r := o.Results
		fmt.Fprintf(out, "%-12s %-11s %7d %6.1f %9.4f %10.4f %10.2f %9.2f\n",
			o.Name, r.Status, r.TotalTrades, r.WinRate, r.TotalPnL, r.Equity, r.ReturnPct, r.MaxDrawdownPct)
	}
	return nil
}
