// Package ledger keeps the single open position, realized equity and the
// closed trade log of a replay.
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of a position. The zero value means flat.
type Side string

const (
	Flat  Side = ""
	Long  Side = "long"
	Short Side = "short"
)

func (s Side) String() string {
	if s == Flat {
		return "flat"
	}
	return string(s)
}

// Sign is +1 for long, -1 for short and 0 when flat.
func (s Side) Sign() float64 {
	switch s {
	case Long:
		return 1
	case Short:
		return -1
	}
	return 0
}

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	case "", "flat", "none":
		return Flat, nil
	}
	return Flat, fmt.Errorf("unknown side %q", s)
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Position is the currently open exposure. Size is the capital committed;
// Size*Leverage is the notional the PnL is computed on.
type Position struct {
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	Size       float64   `json:"size"`
	Leverage   float64   `json:"leverage"`
}

func (p Position) Notional() float64 {
	return p.Size * p.Leverage
}

// Return is the fractional price move in the position's favour.
func (p Position) Return(mark float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return p.Side.Sign() * (mark - p.EntryPrice) / p.EntryPrice
}

// PnL is the unrealized profit at mark, before commission.
func (p Position) PnL(mark float64) float64 {
	return p.Notional() * p.Return(mark)
}
