package agent

import (
	"fmt"

	"github.com/rustyeddy/tradereplay/ledger"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/orderflow"
)

type MomentumConfig struct {
	Lookback  int     `mapstructure:"lookback" json:"lookback" yaml:"lookback"`
	Threshold float64 `mapstructure:"threshold" json:"threshold" yaml:"threshold"`
}

func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{Lookback: 10, Threshold: 1.0}
}

// Momentum trades percentage moves over a fixed lookback and exits when the
// move reverses sign.
type Momentum struct {
	cfg       MomentumConfig
	side      ledger.Side
	reasoning string
}

func NewMomentum(cfg MomentumConfig) (*Momentum, error) {
	if cfg.Lookback < 1 {
		return nil, fmt.Errorf("lookback must be at least 1")
	}
	if cfg.Threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive")
	}
	return &Momentum{cfg: cfg}, nil
}

func (a *Momentum) Reasoning() string { return a.reasoning }

func (a *Momentum) Analyze(visible market.Series, _ orderflow.Metrics) (Decision, error) {
	if len(visible) < a.cfg.Lookback+5 {
		a.reasoning = "Not enough data"
		return Hold, nil
	}

	cur := visible[len(visible)-1].Close
	past := visible[len(visible)-a.cfg.Lookback].Close
	if past == 0 {
		a.reasoning = "Zero reference price"
		return Hold, nil
	}
	mom := (cur - past) / past * 100
	th := a.cfg.Threshold

	switch {
	case mom > th && a.side != ledger.Long:
		if a.side == ledger.Short {
			a.side = ledger.Flat
			a.reasoning = fmt.Sprintf("Exit short: momentum up %.2f%%", mom)
			return Close, nil
		}
		a.side = ledger.Long
		a.reasoning = fmt.Sprintf("Momentum up %.2f%% > %.2f%%", mom, th)
		return Buy, nil

	case mom < -th && a.side != ledger.Short:
		if a.side == ledger.Long {
			a.side = ledger.Flat
			a.reasoning = fmt.Sprintf("Exit long: momentum down %.2f%%", mom)
			return Close, nil
		}
		a.side = ledger.Short
		a.reasoning = fmt.Sprintf("Momentum down %.2f%% < -%.2f%%", mom, th)
		return Sell, nil

	case a.side == ledger.Long && mom < 0:
		a.side = ledger.Flat
		a.reasoning = fmt.Sprintf("Exit long: momentum reversed (%.2f%%)", mom)
		return Close, nil

	case a.side == ledger.Short && mom > 0:
		a.side = ledger.Flat
		a.reasoning = fmt.Sprintf("Exit short: momentum reversed (%.2f%%)", mom)
		return Close, nil
	}

	a.reasoning = fmt.Sprintf("Hold: momentum = %.2f%%", mom)
	return Hold, nil
}

func init() {
	Register("momentum", "Price momentum over a lookback window",
		func(params map[string]any) (Agent, error) {
			cfg := DefaultMomentumConfig()
			if err := decodeParams(params, &cfg); err != nil {
				return nil, err
			}
			return NewMomentum(cfg)
		})
}
