// Package agent defines the decision-making contract the replay engine
// drives, plus the built-in agents.
package agent

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/orderflow"
)

// Decision is what an agent wants done on the current bar.
type Decision int

const (
	Hold Decision = iota
	Buy
	Sell
	Close
)

func (d Decision) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case Close:
		return "CLOSE"
	default:
		return "HOLD"
	}
}

func ParseDecision(s string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HOLD":
		return Hold, nil
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	case "CLOSE":
		return Close, nil
	}
	return Hold, fmt.Errorf("unknown decision %q", s)
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(b []byte) error {
	v, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Agent decides from the bars seen so far. visible always ends at the bar
// being decided on; an agent never sees later bars.
//
// Reasoning explains the most recent decision.
type Agent interface {
	Analyze(visible market.Series, flow orderflow.Metrics) (Decision, error)
	Reasoning() string
}

// Preparer is implemented by agents that precompute over the whole series
// once before the replay starts. Precomputed values for bar i must depend
// only on bars [0..i].
type Preparer interface {
	Prepare(series market.Series) error
}

// Prepare calls a.Prepare when a supports it.
func Prepare(a Agent, series market.Series) error {
	p, ok := a.(Preparer)
	if !ok {
		return nil
	}
	if err := p.Prepare(series); err != nil {
		return fmt.Errorf("prepare agent: %w", err)
	}
	return nil
}
