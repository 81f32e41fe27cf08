// Package report renders replay results as a standalone HTML page.
package report

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/replay"
)

const (
	colorBull   = "#26a69a"
	colorBear   = "#ef5350"
	colorClose  = "#ffb300"
	colorEquity = "#3b82f6"

	chartWidth   = "1400px"
	priceHeight  = "560px"
	equityHeight = "280px"

	timeLayout = "2006-01-02 15:04"
)

var markerStyle = map[agent.Decision]struct {
	symbol string
	color  string
}{
	agent.Buy:   {"triangle", colorBull},
	agent.Sell:  {"pin", colorBear},
	agent.Close: {"diamond", colorClose},
}

// WriteChart writes an HTML page with the price candles, every non-HOLD
// decision as a marker and the equity curve.
func WriteChart(w io.Writer, title string, series market.Series, res replay.Results) error {
	if len(series) == 0 {
		return fmt.Errorf("no bars to chart")
	}

	page := components.NewPage()
	page.PageTitle = title
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(priceChart(title, series, res.DecisionLog), equityChart(res.EquityCurve))
	return page.Render(w)
}

// WriteChartFile is WriteChart into a new file at path.
func WriteChartFile(path, title string, series market.Series, res replay.Results) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteChart(fh, title, series, res); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func priceChart(title string, series market.Series, log []replay.DecisionLogEntry) *charts.Kline {
	xAxis := make([]string, len(series))
	data := make([]opts.KlineData, len(series))
	for i, b := range series {
		xAxis[i] = b.Time.UTC().Format(timeLayout)
		data[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  chartWidth,
			Height: priceHeight,
		}),
		charts.WithTitleOpts(opts.Title{Title: title, Left: "left"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetXAxis(xAxis).AddSeries("Price", data,
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	markers := charts.NewScatter()
	markers.SetXAxis(xAxis)
	for _, d := range []agent.Decision{agent.Buy, agent.Sell, agent.Close} {
		markers.AddSeries(d.String(), decisionPoints(len(series), log, d),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: markerStyle[d].color}),
		)
	}
	kline.Overlap(markers)
	return kline
}

// decisionPoints lines up entries of kind d with the x axis; bars
// without such a decision are left empty.
func decisionPoints(n int, log []replay.DecisionLogEntry, d agent.Decision) []opts.ScatterData {
	symbol := markerStyle[d].symbol
	pts := make([]opts.ScatterData, n)
	for i := range pts {
		pts[i] = opts.ScatterData{Value: nil}
	}
	for _, e := range log {
		if e.Decision != d || e.Bar < 0 || e.Bar >= n {
			continue
		}
		pts[e.Bar] = opts.ScatterData{
			Value:      round(e.Price, 6),
			Symbol:     symbol,
			SymbolSize: 14,
		}
	}
	return pts
}

func equityChart(curve []replay.EquityPoint) *charts.Line {
	xAxis := make([]string, len(curve))
	data := make([]opts.LineData, len(curve))
	for i, p := range curve {
		xAxis[i] = p.Time.UTC().Format(timeLayout)
		data[i] = opts.LineData{Value: round(p.Equity, 4)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  chartWidth,
			Height: equityHeight,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Equity", Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis).AddSeries("Equity", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
	)
	return line
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
