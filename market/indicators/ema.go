// Package indicators holds streaming indicators fed one bar at a time.
package indicators

import (
	"fmt"

	"github.com/rustyeddy/tradereplay/market"
)

// EMA is an exponential moving average over closes.
// It is seeded with the first close rather than an SMA.
//
// An adjusted EMA divides by the sum of the weights seen so far,
// sum((1-alpha)^i * x[t-i]) / sum((1-alpha)^i), so early values are not
// pulled towards the first close. Both forms converge on long series.
type EMA struct {
	n        int
	alpha    float64
	adjusted bool

	seen     int
	value    float64
	num, den float64
	ready    bool

	name string
}

func NewEMA(period int) *EMA {
	if period <= 0 {
		panic("EMA period must be > 0")
	}
	return &EMA{
		n:     period,
		alpha: 2.0 / float64(period+1),
		name:  fmt.Sprintf("EMA(%d)", period),
	}
}

// NewAdjustedEMA returns a weight-normalized EMA.
func NewAdjustedEMA(period int) *EMA {
	e := NewEMA(period)
	e.adjusted = true
	e.name = fmt.Sprintf("EMA(%d,adjusted)", period)
	return e
}

func (e *EMA) Name() string     { return e.name }
func (e *EMA) Warmup() int      { return e.n }
func (e *EMA) Ready() bool      { return e.ready }
func (e *EMA) Seen() int        { return e.seen }
func (e *EMA) Float64() float64 { return e.value }

func (e *EMA) Reset() {
	e.seen = 0
	e.value = 0
	e.num, e.den = 0, 0
	e.ready = false
}

// Update folds one bar's close into the average.
func (e *EMA) Update(b market.Bar) {
	e.Add(b.Close)
}

func (e *EMA) Add(x float64) {
	e.seen++
	switch {
	case e.adjusted:
		decay := 1.0 - e.alpha
		e.num = x + decay*e.num
		e.den = 1 + decay*e.den
		e.value = e.num / e.den
	case e.seen == 1:
		e.value = x
	default:
		e.value = e.alpha*x + (1.0-e.alpha)*e.value
	}
	if e.seen >= e.n {
		e.ready = true
	}
}

// CatchUp feeds any bars of s the EMA has not seen yet. If s is shorter
// than what was already consumed it is treated as a new stream.
func (e *EMA) CatchUp(s market.Series) {
	if len(s) < e.seen {
		e.Reset()
	}
	for _, b := range s[e.seen:] {
		e.Update(b)
	}
}
