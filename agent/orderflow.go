package agent

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/tradereplay/ledger"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/market/indicators"
	"github.com/rustyeddy/tradereplay/orderflow"
)

// OrderFlowConfig tunes the order-flow agent.
type OrderFlowConfig struct {
	CVDThreshold      float64 `mapstructure:"cvd_threshold" json:"cvd_threshold" yaml:"cvd_threshold"`
	VolumeThreshold   float64 `mapstructure:"volume_threshold" json:"volume_threshold" yaml:"volume_threshold"`
	MomentumThreshold float64 `mapstructure:"momentum_threshold" json:"momentum_threshold" yaml:"momentum_threshold"`
}

func DefaultOrderFlowConfig() OrderFlowConfig {
	return OrderFlowConfig{
		CVDThreshold:      1000,
		VolumeThreshold:   1.5,
		MomentumThreshold: 0.5,
	}
}

const orderFlowMinBars = 20

// OrderFlow enters with the trend when volume, cumulative delta and
// momentum all agree, and exits when delta or momentum turn against it.
type OrderFlow struct {
	cfg OrderFlowConfig

	fast, slow *indicators.EMA
	first      market.Bar

	side      ledger.Side
	reasoning string
}

func NewOrderFlow(cfg OrderFlowConfig) *OrderFlow {
	return &OrderFlow{
		cfg:  cfg,
		fast: indicators.NewAdjustedEMA(20),
		slow: indicators.NewAdjustedEMA(50),
	}
}

func (a *OrderFlow) Reasoning() string { return a.reasoning }

func (a *OrderFlow) Analyze(visible market.Series, flow orderflow.Metrics) (Decision, error) {
	a.track(visible)
	if len(visible) < orderFlowMinBars {
		a.reasoning = "Not enough data for analysis"
		return Hold, nil
	}

	ema20 := a.fast.Float64()
	ema50 := ema20
	if len(visible) >= 50 {
		ema50 = a.slow.Float64()
	}
	uptrend := ema20 > ema50
	downtrend := ema20 < ema50

	highVolume := flow.VolumeRatio > a.cfg.VolumeThreshold
	th := a.cfg.MomentumThreshold

	switch {
	case highVolume && flow.CVD > a.cfg.CVDThreshold && flow.Momentum > th && uptrend:
		if a.side == ledger.Short {
			return a.exit(fmt.Sprintf("Exit short: bullish flow (CVD %.0f)", flow.CVD))
		}
		a.side = ledger.Long
		a.reasoning = strings.Join([]string{
			fmt.Sprintf("High volume (%.1fx avg)", flow.VolumeRatio),
			fmt.Sprintf("Positive CVD (%.0f)", flow.CVD),
			fmt.Sprintf("Momentum up (%.2f%%)", flow.Momentum),
			"Uptrend (EMA20 > EMA50)",
		}, " | ")
		return Buy, nil

	case highVolume && flow.CVD < -a.cfg.CVDThreshold && flow.Momentum < -th && downtrend:
		if a.side == ledger.Long {
			return a.exit(fmt.Sprintf("Exit long: bearish flow (CVD %.0f)", flow.CVD))
		}
		a.side = ledger.Short
		a.reasoning = strings.Join([]string{
			fmt.Sprintf("High volume (%.1fx avg)", flow.VolumeRatio),
			fmt.Sprintf("Negative CVD (%.0f)", flow.CVD),
			fmt.Sprintf("Momentum down (%.2f%%)", flow.Momentum),
			"Downtrend (EMA20 < EMA50)",
		}, " | ")
		return Sell, nil

	case a.side == ledger.Long && (flow.CVD < 0 || flow.Momentum < -th):
		return a.exit(fmt.Sprintf("Exit long: CVD %.0f, momentum %.2f%%", flow.CVD, flow.Momentum))

	case a.side == ledger.Short && (flow.CVD > 0 || flow.Momentum > th):
		return a.exit(fmt.Sprintf("Exit short: CVD %.0f, momentum %.2f%%", flow.CVD, flow.Momentum))
	}

	a.reasoning = fmt.Sprintf("No signal: CVD=%.0f, Vol=%.1fx, Mom=%.2f%%", flow.CVD, flow.VolumeRatio, flow.Momentum)
	return Hold, nil
}

func (a *OrderFlow) exit(reason string) (Decision, error) {
	a.side = ledger.Flat
	a.reasoning = reason
	return Close, nil
}

// track streams bars the EMAs have not seen. A different first bar means a
// new replay, so all state starts over.
func (a *OrderFlow) track(visible market.Series) {
	if len(visible) == 0 {
		return
	}
	if visible[0] != a.first || len(visible) < a.fast.Seen() {
		a.first = visible[0]
		a.fast.Reset()
		a.slow.Reset()
		a.side = ledger.Flat
	}
	a.fast.CatchUp(visible)
	a.slow.CatchUp(visible)
}

func init() {
	Register("orderflow", "Volume, CVD and momentum confirmation with an EMA20/EMA50 trend filter",
		func(params map[string]any) (Agent, error) {
			cfg := DefaultOrderFlowConfig()
			if err := decodeParams(params, &cfg); err != nil {
				return nil, err
			}
			return NewOrderFlow(cfg), nil
		})
}
