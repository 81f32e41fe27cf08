// Package features turns a bar series into the numeric rows model-backed
// agents score. Every column at row i depends only on bars [0..i].
package features

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rustyeddy/tradereplay/market"
)

// Names lists the columns of a row, in order.
var Names = []string{
	"ema_5_20_ratio",
	"ema_10_20_ratio",
	"price_ema5_ratio",
	"price_ema20_ratio",
	"rsi_14",
	"rsi_7",
	"momentum_3",
	"momentum_5",
	"momentum_10",
	"roc_5",
	"macd_hist",
	"atr_pct",
	"bb_position",
	"volume_ratio",
	"cvd_norm",
	"body_ratio",
	"upper_wick",
	"lower_wick",
	"direction",
	"bullish_3",
	"range_pct",
}

// Matrix is one row per bar, len(Names) columns per row.
type Matrix [][]float64

// Compute builds the feature matrix for s. Indicator lookback periods read
// as zero; non-finite values carry the previous row's value forward.
func Compute(s market.Series) Matrix {
	n := len(s)
	if n == 0 {
		return nil
	}
	closes := s.Closes()
	highs := s.Highs()
	lows := s.Lows()
	vols := s.Volumes()

	ema5 := indicator(n, 5, func() []float64 { return talib.Ema(closes, 5) })
	ema10 := indicator(n, 10, func() []float64 { return talib.Ema(closes, 10) })
	ema20 := indicator(n, 20, func() []float64 { return talib.Ema(closes, 20) })
	rsi14 := indicator(n, 15, func() []float64 { return talib.Rsi(closes, 14) })
	rsi7 := indicator(n, 8, func() []float64 { return talib.Rsi(closes, 7) })
	roc5 := indicator(n, 6, func() []float64 { return talib.Roc(closes, 5) })
	atr := indicator(n, 15, func() []float64 { return talib.Atr(highs, lows, closes, 14) })
	hist := indicator(n, 34, func() []float64 {
		_, _, h := talib.Macd(closes, 12, 26, 9)
		return h
	})
	upper, lower := make([]float64, n), make([]float64, n)
	if n >= 20 {
		upper, _, lower = talib.BBands(closes, 20, 2, 2, talib.SMA)
	}

	m := make(Matrix, n)
	for i := 0; i < n; i++ {
		b := s[i]
		rng := b.High - b.Low
		row := make([]float64, len(Names))

		row[0] = ratio(ema5[i], ema20[i]) - one(ema20[i])
		row[1] = ratio(ema10[i], ema20[i]) - one(ema20[i])
		row[2] = ratio(b.Close, ema5[i]) - one(ema5[i])
		row[3] = ratio(b.Close, ema20[i]) - one(ema20[i])
		row[4] = rsi14[i] / 100
		row[5] = rsi7[i] / 100
		row[6] = pctChange(closes, i, 3)
		row[7] = pctChange(closes, i, 5)
		row[8] = pctChange(closes, i, 10)
		row[9] = roc5[i]
		row[10] = ratio(hist[i], b.Close)
		row[11] = ratio(atr[i], b.Close)
		if i >= 19 {
			row[12] = ratio(b.Close-lower[i], upper[i]-lower[i])
		}
		row[13] = ratio(vols[i], mean(vols, i, 20))
		row[14] = cvdNorm(s, i, 10)
		row[15] = ratio(math.Abs(b.Close-b.Open), rng)
		row[16] = ratio(b.High-math.Max(b.Open, b.Close), rng)
		row[17] = ratio(math.Min(b.Open, b.Close)-b.Low, rng)
		row[18] = direction(b)
		row[19] = bullishShare(s, i, 3)
		row[20] = ratio(rng, b.Close)

		m[i] = row
	}
	forwardFill(m)
	return m
}

func indicator(n, need int, fn func() []float64) []float64 {
	if n < need {
		return make([]float64, n)
	}
	return fn()
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// one is 1 when an indicator has a value, so "x/ema - 1" reads 0 during
// the lookback instead of -1.
func one(v float64) float64 {
	if v == 0 {
		return 0
	}
	return 1
}

func pctChange(closes []float64, i, k int) float64 {
	if i < k || closes[i-k] == 0 {
		return 0
	}
	return (closes[i] - closes[i-k]) / closes[i-k] * 100
}

func mean(x []float64, i, window int) float64 {
	from := max(0, i-window+1)
	var sum float64
	for _, v := range x[from : i+1] {
		sum += v
	}
	return sum / float64(i+1-from)
}

func cvdNorm(s market.Series, i, window int) float64 {
	from := max(0, i-window+1)
	var delta, total float64
	for _, b := range s[from : i+1] {
		total += b.Volume
		if b.Bullish() {
			delta += b.Volume
		} else {
			delta -= b.Volume
		}
	}
	return ratio(delta, total)
}

func direction(b market.Bar) float64 {
	switch {
	case b.Close > b.Open:
		return 1
	case b.Close < b.Open:
		return -1
	}
	return 0
}

func bullishShare(s market.Series, i, window int) float64 {
	from := max(0, i-window+1)
	var n float64
	for _, b := range s[from : i+1] {
		if b.Bullish() {
			n++
		}
	}
	return n / float64(window)
}

// forwardFill replaces NaN and Inf with the previous row's value in the same
// column, or 0 on the first row. Nothing is ever filled backwards.
func forwardFill(m Matrix) {
	for i, row := range m {
		for j, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				continue
			}
			if i == 0 {
				row[j] = 0
			} else {
				row[j] = m[i-1][j]
			}
		}
	}
}
