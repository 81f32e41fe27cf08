// Package market holds the OHLCV bar model and the sources that load it.
package market

import (
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV candle. Bars are values and are never mutated once loaded.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Finite reports whether every price and the volume are real numbers.
func (b Bar) Finite() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Series is an ordered run of bars for a single instrument.
type Series []Bar

// Validate checks every bar holds finite values and timestamps are
// strictly increasing.
func (s Series) Validate() error {
	for i := range s {
		if !s[i].Finite() {
			return fmt.Errorf("bar %d at %s has a non-finite value", i, s[i].Time.Format(time.RFC3339))
		}
		if i == 0 {
			continue
		}
		if !s[i].Time.After(s[i-1].Time) {
			return fmt.Errorf("bar %d at %s is not after bar %d at %s",
				i, s[i].Time.Format(time.RFC3339), i-1, s[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Prefix returns bars [0..i] with capacity capped at i+1, so the
// caller cannot reslice into bars after i.
func (s Series) Prefix(i int) Series {
	if i < 0 {
		return s[:0:0]
	}
	if i >= len(s) {
		i = len(s) - 1
	}
	return s[: i+1 : i+1]
}

// Last returns the most recent bar. ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Tail returns the trailing n bars (fewer when the series is short).
func (s Series) Tail(n int) Series {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return s[len(s):]
	}
	return s[len(s)-n:]
}

func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.High
	}
	return out
}

func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Low
	}
	return out
}

func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Volume
	}
	return out
}

// Between returns the bars with from <= Time < to. A zero bound is open.
func (s Series) Between(from, to time.Time) Series {
	var out Series
	for _, b := range s {
		if inRange(b.Time, from, to) {
			out = append(out, b)
		}
	}
	return out
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
