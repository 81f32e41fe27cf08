package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradereplay/journal"
	"github.com/rustyeddy/tradereplay/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the replay HTTP API",
	Long: `Start the HTTP API. Run requests fetch bars from the configured source.
With --db every run is journaled and can be listed under /api/replay/runs.

Endpoints:
  POST /api/replay/run
  POST /api/replay/compare
  GET  /api/replay/agents
  GET  /api/replay/runs[/:id[/trades|/equity]]
  GET  /healthz`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr   string
	serveDBPath string
	serveSource string
	serveCSV    string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite journal for runs")
	serveCmd.Flags().StringVar(&serveSource, "source", "", "bar source: csv or binance (overrides data.source)")
	serveCmd.Flags().StringVar(&serveCSV, "csv", "", "CSV file for the csv source")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveSource != "" {
		cfg.Data.Source = serveSource
	}
	if serveCSV != "" {
		cfg.Data.CSVFile = serveCSV
	}
	dbPath := serveDBPath
	if dbPath == "" && cfg.Journal.Type == "sqlite" {
		dbPath = cfg.Journal.DBPath
	}

	src, err := openSource(cfg.Data)
	if err != nil {
		return err
	}

	var db *journal.SQLite
	if dbPath != "" {
		if db, err = journal.NewSQLite(dbPath); err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
	}

	srv, err := server.New(server.Config{Addr: cfg.Server.Addr, Source: src, Journal: db})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx)
}
