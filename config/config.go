package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/replay"
)

// EnvPrefix prefixes environment overrides, e.g. REPLAY_RUN_LEVERAGE=5.
const EnvPrefix = "REPLAY"

// DateLayout is the layout of data.start and data.end.
const DateLayout = "2006-01-02"

// Config represents a complete replay configuration
type Config struct {
	Run     RunConfig     `json:"run" yaml:"run" mapstructure:"run"`
	Agent   AgentConfig   `json:"agent" yaml:"agent" mapstructure:"agent"`
	Data    DataConfig    `json:"data" yaml:"data" mapstructure:"data"`
	Journal JournalConfig `json:"journal" yaml:"journal" mapstructure:"journal"`
	Report  ReportConfig  `json:"report" yaml:"report" mapstructure:"report"`
	Server  ServerConfig  `json:"server" yaml:"server" mapstructure:"server"`
	Log     LogConfig     `json:"log" yaml:"log" mapstructure:"log"`
}

// RunConfig holds the replay account parameters
type RunConfig struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital" mapstructure:"initial_capital"`
	PositionSize   float64 `json:"position_size" yaml:"position_size" mapstructure:"position_size"`
	Leverage       float64 `json:"leverage" yaml:"leverage" mapstructure:"leverage"`
	Commission     float64 `json:"commission" yaml:"commission" mapstructure:"commission"`
	Speed          float64 `json:"speed" yaml:"speed" mapstructure:"speed"` // bars per second, 0 = instant
	StartBar       int     `json:"start_bar" yaml:"start_bar" mapstructure:"start_bar"`
	// Warmup overrides the default warmup when set.
	Warmup *int `json:"warmup,omitempty" yaml:"warmup,omitempty" mapstructure:"warmup"`
}

type AgentConfig struct {
	Type   string         `json:"type" yaml:"type" mapstructure:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
}

// DataConfig selects the bar source
type DataConfig struct {
	Source    string `json:"source" yaml:"source" mapstructure:"source"` // "csv" or "binance"
	CSVFile   string `json:"csv_file,omitempty" yaml:"csv_file,omitempty" mapstructure:"csv_file"`
	Symbol    string `json:"symbol" yaml:"symbol" mapstructure:"symbol"`
	Timeframe string `json:"timeframe" yaml:"timeframe" mapstructure:"timeframe"`
	Start     string `json:"start,omitempty" yaml:"start,omitempty" mapstructure:"start"`
	End       string `json:"end,omitempty" yaml:"end,omitempty" mapstructure:"end"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type          string `json:"type" yaml:"type" mapstructure:"type"` // "none", "csv" or "sqlite"
	TradesFile    string `json:"trades_file,omitempty" yaml:"trades_file,omitempty" mapstructure:"trades_file"`
	EquityFile    string `json:"equity_file,omitempty" yaml:"equity_file,omitempty" mapstructure:"equity_file"`
	DecisionsFile string `json:"decisions_file,omitempty" yaml:"decisions_file,omitempty" mapstructure:"decisions_file"`
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty" mapstructure:"db_path"`
	SkipHolds     bool   `json:"skip_holds,omitempty" yaml:"skip_holds,omitempty" mapstructure:"skip_holds"`
}

type ReportConfig struct {
	ChartFile string `json:"chart_file,omitempty" yaml:"chart_file,omitempty" mapstructure:"chart_file"`
	OrgFile   string `json:"org_file,omitempty" yaml:"org_file,omitempty" mapstructure:"org_file"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	opts := replay.DefaultOptions()
	return &Config{
		Run: RunConfig{
			InitialCapital: opts.InitialCapital,
			PositionSize:   opts.PositionSize,
			Leverage:       opts.Leverage,
			Commission:     opts.Commission,
		},
		Agent: AgentConfig{Type: "orderflow"},
		Data: DataConfig{
			Source:    "csv",
			CSVFile:   "./bars.csv",
			Symbol:    "XRPUSDT",
			Timeframe: "5m",
		},
		Journal: JournalConfig{Type: "none"},
		Server:  ServerConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info"},
	}
}

// defaults registers every scalar key with viper so environment
// overrides apply to keys missing from the file.
func defaults(v *viper.Viper) {
	d := Default()
	for key, val := range map[string]any{
		"run.initial_capital":    d.Run.InitialCapital,
		"run.position_size":      d.Run.PositionSize,
		"run.leverage":           d.Run.Leverage,
		"run.commission":         d.Run.Commission,
		"run.speed":              d.Run.Speed,
		"run.start_bar":          d.Run.StartBar,
		"agent.type":             d.Agent.Type,
		"data.source":            d.Data.Source,
		"data.csv_file":          d.Data.CSVFile,
		"data.symbol":            d.Data.Symbol,
		"data.timeframe":         d.Data.Timeframe,
		"data.start":             "",
		"data.end":               "",
		"data.base_url":          "",
		"journal.type":           d.Journal.Type,
		"journal.trades_file":    "",
		"journal.equity_file":    "",
		"journal.decisions_file": "",
		"journal.db_path":        "",
		"journal.skip_holds":     false,
		"report.chart_file":      "",
		"report.org_file":        "",
		"server.addr":            d.Server.Addr,
		"log.level":              d.Log.Level,
	} {
		v.SetDefault(key, val)
	}
}

// Load reads the configuration at path (YAML or JSON) layered over the
// defaults and REPLAY_* environment variables. An empty path loads
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("run.warmup")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads and validates the configuration at path
func LoadFromFile(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Options().Validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if c.Run.Speed < 0 {
		return fmt.Errorf("run.speed must not be negative")
	}
	if c.Run.StartBar < 0 {
		return fmt.Errorf("run.start_bar must not be negative")
	}
	if c.Run.Warmup != nil && *c.Run.Warmup < 0 {
		return fmt.Errorf("run.warmup must not be negative")
	}
	if c.Agent.Type == "" {
		return fmt.Errorf("agent.type is required")
	}

	switch c.Data.Source {
	case "csv":
		if c.Data.CSVFile == "" {
			return fmt.Errorf("data.csv_file required for csv source")
		}
	case "binance":
		if c.Data.Symbol == "" {
			return fmt.Errorf("data.symbol required for binance source")
		}
		if c.Data.Start == "" || c.Data.End == "" {
			return fmt.Errorf("data.start and data.end required for binance source")
		}
	default:
		return fmt.Errorf("data.source must be 'csv' or 'binance'")
	}
	if _, err := market.ParseTimeframe(c.Data.Timeframe); err != nil {
		return fmt.Errorf("data.timeframe: %w", err)
	}
	if _, err := c.Data.Request(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	return nil
}

// Options converts the run section to engine options.
func (c *Config) Options() replay.Options {
	opts := replay.Options{
		InitialCapital: c.Run.InitialCapital,
		PositionSize:   c.Run.PositionSize,
		Leverage:       c.Run.Leverage,
		Commission:     c.Run.Commission,
	}
	if c.Run.Warmup != nil {
		opts.Warmup = replay.FixedWarmup(*c.Run.Warmup)
	}
	return opts
}

// Request builds the fetch request. Dates are whole UTC days; End is
// exclusive. Empty dates leave the range open.
func (d DataConfig) Request() (market.FetchRequest, error) {
	req := market.FetchRequest{Symbol: d.Symbol, Timeframe: d.Timeframe}
	var err error
	if req.Start, err = ParseDate(d.Start); err != nil {
		return req, fmt.Errorf("data.start: %w", err)
	}
	if req.End, err = ParseDate(d.End); err != nil {
		return req, fmt.Errorf("data.end: %w", err)
	}
	if !req.Start.IsZero() && !req.End.IsZero() && !req.End.After(req.Start) {
		return req, fmt.Errorf("data.end must be after data.start")
	}
	return req, nil
}

// ParseDate accepts YYYY-MM-DD or RFC3339. Empty yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t.UTC(), nil
}
