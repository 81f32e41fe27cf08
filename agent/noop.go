package agent

import (
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/orderflow"
)

// Noop always holds. Useful as a baseline and for timing the engine.
type Noop struct{}

func (Noop) Analyze(market.Series, orderflow.Metrics) (Decision, error) { return Hold, nil }
func (Noop) Reasoning() string                                         { return "noop" }

func init() {
	Register("noop", "Always HOLD; baseline", func(map[string]any) (Agent, error) {
		return Noop{}, nil
	})
}
