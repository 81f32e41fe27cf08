// Package replay steps an agent through historical bars one at a time and
// keeps the resulting trades, equity curve and decision log.
package replay

import (
	"fmt"
	"time"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/ledger"
)

// Status is the engine lifecycle: Idle, then Running, then one of the
// terminal states.
type Status int

const (
	Idle Status = iota
	Running
	Finished
	Liquidated
	Stopped
	Failed
)

var statusNames = map[Status]string{
	Idle:       "idle",
	Running:    "running",
	Finished:   "finished",
	Liquidated: "liquidated",
	Stopped:    "stopped",
	Failed:     "failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further bars will be processed.
func (s Status) Terminal() bool {
	return s >= Finished
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for k, v := range statusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// DecisionLogEntry records what the agent decided on one bar and the
// position state after the decision was applied.
type DecisionLogEntry struct {
	Time          time.Time      `json:"time"`
	Bar           int            `json:"bar"`
	Price         float64        `json:"price"`
	Decision      agent.Decision `json:"decision"`
	Reasoning     string         `json:"reasoning"`
	Position      ledger.Side    `json:"position,omitempty"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
}

// EquityPoint is mark-to-market equity after a bar.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// State is a snapshot of a replay. The decision log includes HOLD entries.
type State struct {
	Status      Status             `json:"status"`
	CurrentBar  int                `json:"current_bar"`
	Equity      float64            `json:"equity"`
	Position    *ledger.Position   `json:"position,omitempty"`
	Trades      []ledger.Trade     `json:"trades"`
	DecisionLog []DecisionLogEntry `json:"decision_log"`
	EquityCurve []EquityPoint      `json:"equity_curve"`
}

// BarEvent is passed to bar observers after a bar has been logged.
type BarEvent struct {
	Entry  DecisionLogEntry
	Equity float64 // mark-to-market
	Cash   float64 // realized
}
