package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradereplay/config"
	"github.com/rustyeddy/tradereplay/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tradereplay",
	Short: "Bar-by-bar market replay for trading agents",
	Long: `tradereplay feeds historical OHLCV bars to a trading agent one bar at a
time, applies its BUY/SELL/CLOSE/HOLD decisions to a simulated leveraged
account and reports trades, equity and drawdown.

The agent only ever sees bars up to the one being replayed.

Examples:
  tradereplay run --config replay.yaml
  tradereplay run --csv bars.csv --agent momentum --param lookback=12
  tradereplay compare --csv bars.csv --agents noop,momentum,orderflow
  tradereplay serve --addr :8080 --db runs.sqlite`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfgFile  string
	envFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
}

func setup(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return nil
}

// loadConfig reads --config (or defaults plus REPLAY_* variables) and
// applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}
