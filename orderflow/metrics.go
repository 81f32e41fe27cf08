// Package orderflow derives volume and pressure metrics from the bars an
// agent is allowed to see.
package orderflow

import (
	"math"

	"github.com/rustyeddy/tradereplay/market"
	"github.com/shopspring/decimal"
)

const (
	VolumeWindow        = 20
	MomentumWindow      = 5
	CVDWindow           = 10
	HighVolumeThreshold = 1.5
)

// Metrics is the order-flow snapshot for the last visible bar.
type Metrics struct {
	VolumeRatio float64 `json:"volume_ratio"`
	Momentum    float64 `json:"momentum"`
	CVD         float64 `json:"cvd"`
	HighVolume  bool    `json:"is_high_volume"`

	// Ready is false when fewer than two bars were visible; the other
	// fields then hold neutral values.
	Ready bool `json:"ready"`
}

// Neutral is what agents see before there is enough history.
func Neutral() Metrics {
	return Metrics{VolumeRatio: 1}
}

// Compute is a pure function of visible. It never reads past the last bar.
func Compute(visible market.Series) Metrics {
	if len(visible) < 2 {
		return Neutral()
	}

	cur := visible[len(visible)-1]
	m := Metrics{Ready: true}

	m.VolumeRatio = volumeRatio(cur.Volume, visible.Tail(VolumeWindow))
	m.HighVolume = m.VolumeRatio > HighVolumeThreshold
	m.Momentum = momentum(visible)
	m.CVD = CVD(visible.Tail(CVDWindow))
	return m
}

func volumeRatio(current float64, window market.Series) float64 {
	sum := decimal.Zero
	n := 0
	for _, b := range window {
		if !finite(b.Volume) {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(b.Volume))
		n++
	}
	if n == 0 || !sum.IsPositive() || !finite(current) {
		return 1
	}
	avg := sum.Div(decimal.NewFromInt(int64(n)))
	ratio, _ := decimal.NewFromFloat(current).Div(avg).Float64()
	return ratio
}

// momentum compares the last close with the close MomentumWindow-1 bars
// earlier, in percent.
func momentum(visible market.Series) float64 {
	if len(visible) < MomentumWindow {
		return 0
	}
	past := visible[len(visible)-MomentumWindow].Close
	if past == 0 {
		return 0
	}
	last := visible[len(visible)-1].Close
	return (last - past) / past * 100
}

// CVD sums volume over bars, counting a bar as buying when it closed above
// its open and as selling otherwise. Bars with a non-finite volume are
// skipped.
func CVD(bars market.Series) float64 {
	delta := decimal.Zero
	for _, b := range bars {
		if !finite(b.Volume) {
			continue
		}
		v := decimal.NewFromFloat(b.Volume)
		if b.Bullish() {
			delta = delta.Add(v)
		} else {
			delta = delta.Sub(v)
		}
	}
	out, _ := delta.Float64()
	return out
}

// decimal panics on NaN and Inf
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
