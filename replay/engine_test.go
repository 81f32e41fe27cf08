package replay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/ledger"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/orderflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func priced(prices ...float64) market.Series {
	s := make(market.Series, len(prices))
	for i, p := range prices {
		s[i] = market.Bar{
			Time:   t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 1000,
		}
	}
	return s
}

// ramp is n bars closing at 100, 101, 102, ...
func ramp(n int) market.Series {
	ps := make([]float64, n)
	for i := range ps {
		ps[i] = 100 + float64(i)
	}
	return priced(ps...)
}

// script decides by bar index (the last visible bar).
type script struct {
	at    map[int]agent.Decision
	fail  map[int]error
	hook  func(i int)
	calls []int
}

func (s *script) Analyze(visible market.Series, _ orderflow.Metrics) (agent.Decision, error) {
	i := len(visible) - 1
	s.calls = append(s.calls, i)
	if s.hook != nil {
		s.hook(i)
	}
	if err, ok := s.fail[i]; ok {
		return agent.Hold, err
	}
	if d, ok := s.at[i]; ok {
		return d, nil
	}
	return agent.Hold, nil
}

func (s *script) Reasoning() string { return "scripted" }

func opts(capital, size, leverage, commission float64) Options {
	return Options{InitialCapital: capital, PositionSize: size, Leverage: leverage, Commission: commission}
}

func run(t *testing.T, s market.Series, a agent.Agent, o Options) (*Engine, Results) {
	t.Helper()
	eng, err := NewEngine(s, a, o)
	require.NoError(t, err)
	res, err := eng.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	return eng, res
}

func TestPnLScalesWithSizeAndLeverage(t *testing.T) {
	buyAt2CloseAt5 := func() *script {
		return &script{at: map[int]agent.Decision{2: agent.Buy, 5: agent.Close}}
	}

	_, small := run(t, ramp(10), buyAt2CloseAt5(), opts(100, 20, 1, 0))
	_, large := run(t, ramp(10), buyAt2CloseAt5(), opts(100, 100, 1, 0))
	_, levered := run(t, ramp(10), buyAt2CloseAt5(), opts(100, 20, 5, 0))

	require.Equal(t, 1, small.TotalTrades)
	tr := small.Trades[0]
	assert.Equal(t, 102.0, tr.EntryPrice)
	assert.Equal(t, 105.0, tr.ExitPrice)
	assert.Equal(t, ledger.Long, tr.Side)
	assert.InDelta(t, 20*3.0/102.0, tr.PnL, 1e-9)

	assert.InDelta(t, 5*small.TotalPnL, large.TotalPnL, 1e-9)
	assert.InDelta(t, large.TotalPnL, levered.TotalPnL, 1e-9)
	assert.InDelta(t, 100+small.TotalPnL, small.Equity, 1e-9)
}

func TestCommissionDeducted(t *testing.T) {
	a := &script{at: map[int]agent.Decision{2: agent.Buy, 5: agent.Close}}
	_, res := run(t, ramp(10), a, opts(100, 20, 2, 0.001))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.InDelta(t, 0.08, tr.Fee, 1e-12)
	assert.InDelta(t, 40*3.0/102.0-0.08, tr.PnL, 1e-9)
	assert.InDelta(t, tr.PnL, tr.PnLPct, 1e-9, "capital is 100 so pct equals pnl")
	assert.InDelta(t, 0.08, res.TotalFees, 1e-12)
}

func TestShortTrade(t *testing.T) {
	a := &script{at: map[int]agent.Decision{2: agent.Sell, 4: agent.Close}}
	_, res := run(t, ramp(10), a, opts(100, 20, 1, 0))

	require.Len(t, res.Trades, 1)
	assert.Equal(t, ledger.Short, res.Trades[0].Side)
	assert.InDelta(t, -20*2.0/102.0, res.Trades[0].PnL, 1e-9)
	assert.Equal(t, 0, res.Wins)
	assert.Equal(t, 1, res.Losses)
	assert.Less(t, res.ReturnPct, 0.0)
}

func TestLiquidationHalts(t *testing.T) {
	prices := []float64{100, 100, 100, 100, 100, 100, 95, 89}
	for len(prices) < 20 {
		prices = append(prices, 85)
	}
	s := priced(prices...)
	a := &script{at: map[int]agent.Decision{4: agent.Buy}}

	var traded []ledger.Trade
	eng, err := NewEngine(s, a, opts(100, 100, 10, 0))
	require.NoError(t, err)
	eng.OnTrade(func(tr ledger.Trade) error { traded = append(traded, tr); return nil })

	res, err := eng.Run(context.Background(), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, Liquidated, res.Status)
	assert.Equal(t, Liquidated, eng.Status())
	assert.Equal(t, []int{4, 5, 6, 7}, a.calls, "nothing runs after the liquidating bar")

	require.Len(t, res.Trades, 1)
	assert.Equal(t, ledger.ReasonLiquidation, res.Trades[0].Reason)
	assert.Equal(t, 89.0, res.Trades[0].ExitPrice)
	assert.InDelta(t, -110, res.Trades[0].PnL, 1e-9)
	assert.InDelta(t, -10, res.Equity, 1e-9)
	assert.Nil(t, res.OpenPosition)
	assert.Len(t, traded, 1)

	st := eng.State()
	require.Len(t, st.DecisionLog, 3, "liquidating bar is not logged")
	assert.Equal(t, 6, st.DecisionLog[2].Bar)
	assert.Len(t, st.EquityCurve, 3)
	assert.InDelta(t, 50, st.EquityCurve[2].Equity, 1e-9)
}

func TestWarmupSkip(t *testing.T) {
	a := &script{}
	o := opts(100, 20, 1, 0)
	o.Warmup = FixedWarmup(50)

	eng, res := run(t, ramp(10), a, o)
	assert.Equal(t, Finished, res.Status)
	assert.Empty(t, a.calls)
	assert.Empty(t, eng.State().DecisionLog)
	assert.Zero(t, res.TotalTrades)
	assert.Equal(t, 100.0, res.Equity)

	b := &script{}
	eng, err := NewEngine(ramp(10), b, opts(100, 20, 1, 0))
	require.NoError(t, err)
	res, err = eng.Run(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, Finished, res.Status)
	assert.Empty(t, b.calls)
}

func TestDefaultWarmup(t *testing.T) {
	assert.Equal(t, 2, DefaultWarmup(10))
	assert.Equal(t, 0, DefaultWarmup(4))
	assert.Equal(t, 500, DefaultWarmup(100_000))

	eng, err := NewEngine(ramp(10), agent.Noop{}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, eng.StartIndex(0))
	assert.Equal(t, 7, eng.StartIndex(7))
}

func TestNegativeStartBeginsAtFirstBar(t *testing.T) {
	a := &script{}
	o := opts(100, 20, 1, 0)
	o.Warmup = FixedWarmup(-1)

	eng, err := NewEngine(ramp(5), a, o)
	require.NoError(t, err)
	assert.Equal(t, 0, eng.StartIndex(-3))

	var res Results
	require.NotPanics(t, func() {
		res, err = eng.Run(context.Background(), 0, -3)
	})
	require.NoError(t, err)
	assert.Equal(t, Finished, res.Status)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, a.calls)
}

func TestAllHoldLogsEveryBar(t *testing.T) {
	eng, res := run(t, ramp(100), agent.Noop{}, opts(100, 20, 1, 0.001))

	st := eng.State()
	assert.Len(t, st.DecisionLog, 100-20)
	assert.Len(t, st.EquityCurve, 100-20)
	assert.Equal(t, 80, res.BarsProcessed)
	assert.Empty(t, res.DecisionLog, "HOLD entries are filtered from results")
	assert.Zero(t, res.TotalTrades)
	assert.Equal(t, 100.0, res.Equity)
	assert.Zero(t, res.ReturnPct)
	for _, p := range st.EquityCurve {
		assert.Equal(t, 100.0, p.Equity)
	}
}

type peeker struct {
	series market.Series
	t      *testing.T
	n      int
}

func (p *peeker) Analyze(visible market.Series, flow orderflow.Metrics) (agent.Decision, error) {
	i := len(visible) - 1
	assert.Equal(p.t, len(visible), cap(visible), "tail must not be reachable")
	assert.Equal(p.t, p.series[i], visible[i])
	assert.Equal(p.t, orderflow.Compute(p.series[:i+1]), flow)
	p.n++
	return agent.Hold, nil
}

func (p *peeker) Reasoning() string { return "" }

func TestNoLookAhead(t *testing.T) {
	s := ramp(30)
	p := &peeker{series: s, t: t}
	eng, _ := run(t, s, p, opts(100, 20, 1, 0))

	assert.Equal(t, 30-6, p.n)
	for k, e := range eng.State().DecisionLog {
		assert.Equal(t, 6+k, e.Bar)
		assert.Equal(t, s[e.Bar].Close, e.Price)
		assert.Equal(t, s[e.Bar].Time, e.Time)
	}
}

func TestSinglePositionAtATime(t *testing.T) {
	always := map[int]agent.Decision{}
	for i := 0; i < 20; i++ {
		always[i] = agent.Buy
	}
	always[10] = agent.Sell
	eng, res := run(t, ramp(20), &script{at: always}, opts(100, 20, 1, 0))

	assert.Zero(t, res.TotalTrades)
	require.NotNil(t, res.OpenPosition)
	assert.Equal(t, ledger.Long, res.OpenPosition.Side)
	assert.Equal(t, 104.0, res.OpenPosition.EntryPrice)
	assert.Equal(t, 100.0, res.Equity, "realized equity is unchanged while open")

	last := eng.State().EquityCurve
	assert.InDelta(t, 100+20*(119.0-104.0)/104.0, last[len(last)-1].Equity, 1e-9)

	closes := map[int]agent.Decision{5: agent.Close, 6: agent.Close}
	_, res = run(t, ramp(20), &script{at: closes}, opts(100, 20, 1, 0))
	assert.Zero(t, res.TotalTrades, "CLOSE while flat does nothing")
	assert.Len(t, res.DecisionLog, 2)
}

func TestEquityCurveIsMarkToMarket(t *testing.T) {
	a := &script{at: map[int]agent.Decision{2: agent.Buy, 6: agent.Close}}
	eng, _ := run(t, ramp(10), a, opts(100, 20, 3, 0))

	st := eng.State()
	for _, e := range st.DecisionLog {
		var want float64
		switch {
		case e.Bar < 2:
			want = 100
		case e.Bar < 6:
			want = 100 + 60*(e.Price-102)/102
			assert.Equal(t, ledger.Long, e.Position)
			assert.InDelta(t, want-100, e.UnrealizedPnL, 1e-9)
		default:
			want = 100 + 60*(106.0-102)/102
			assert.Equal(t, ledger.Flat, e.Position)
			assert.Zero(t, e.UnrealizedPnL)
		}
		assert.InDelta(t, want, st.EquityCurve[e.Bar-2].Equity, 1e-9, "bar %d", e.Bar)
	}
}

func TestStop(t *testing.T) {
	var eng *Engine
	a := &script{hook: func(i int) {
		if i == 5 {
			eng.Stop()
		}
	}}
	eng, err := NewEngine(ramp(20), a, opts(100, 20, 1, 0))
	require.NoError(t, err)

	res, err := eng.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Stopped, res.Status)
	assert.Equal(t, []int{4, 5}, a.calls, "stop is seen at the next bar boundary")
	assert.Equal(t, 2, res.BarsProcessed)
}

func TestCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &script{}
	eng, err := NewEngine(ramp(20), a, opts(100, 20, 1, 0))
	require.NoError(t, err)
	res, err := eng.Run(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Stopped, res.Status)
	assert.Empty(t, a.calls)
}

func TestSpeedDelayIsCancellable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	a := &script{}
	eng, err := NewEngine(ramp(20), a, opts(100, 20, 1, 0))
	require.NoError(t, err)

	begin := time.Now()
	res, err := eng.Run(ctx, 0.001, 0) // 1000s between bars
	require.NoError(t, err)

	assert.Less(t, time.Since(begin), 5*time.Second)
	assert.Equal(t, Stopped, res.Status)
	assert.Equal(t, []int{4}, a.calls)
}

func TestAgentFailureAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	a := &script{fail: map[int]error{7: boom}}
	eng, err := NewEngine(ramp(20), a, opts(100, 20, 1, 0))
	require.NoError(t, err)

	res, err := eng.Run(context.Background(), 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var ae *AgentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 7, ae.Bar)
	assert.Equal(t, Failed, res.Status)
	assert.Equal(t, 3, res.BarsProcessed)
}

type panicky struct{}

func (panicky) Analyze(market.Series, orderflow.Metrics) (agent.Decision, error) {
	panic("index out of range")
}
func (panicky) Reasoning() string { return "" }

func TestAgentPanicBecomesError(t *testing.T) {
	eng, err := NewEngine(ramp(10), panicky{}, opts(100, 20, 1, 0))
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), 0, 0)

	var ae *AgentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 2, ae.Bar)
	assert.Contains(t, err.Error(), "index out of range")
	assert.Equal(t, Failed, eng.Status())
}

func TestObserverFailuresAreIsolated(t *testing.T) {
	a := &script{at: map[int]agent.Decision{2: agent.Buy, 4: agent.Close}}
	eng, err := NewEngine(ramp(10), a, opts(100, 20, 1, 0))
	require.NoError(t, err)

	var bars, trades int
	eng.OnBar(func(BarEvent) error { return errors.New("disk full") })
	eng.OnBar(func(BarEvent) error { panic("observer bug") })
	eng.OnBar(func(ev BarEvent) error {
		bars++
		assert.InDelta(t, ev.Cash+ev.Entry.UnrealizedPnL, ev.Equity, 1e-9)
		return nil
	})
	eng.OnTrade(func(ledger.Trade) error { trades++; panic("trade observer bug") })

	res, err := eng.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Finished, res.Status)
	assert.Equal(t, 8, bars)
	assert.Equal(t, 1, trades)
	assert.Equal(t, 1, res.TotalTrades)
}

func TestRunOnce(t *testing.T) {
	eng, err := NewEngine(ramp(10), agent.Noop{}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Idle, eng.Status())

	_, err = eng.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestNewEngineValidates(t *testing.T) {
	_, err := NewEngine(ramp(3), nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoAgent)

	tests := []struct {
		name string
		o    Options
		msg  string
	}{
		{"capital", opts(0, 20, 1, 0), "initial capital"},
		{"size", opts(100, -1, 1, 0), "position size"},
		{"leverage", opts(100, 20, 0, 0), "leverage"},
		{"commission", opts(100, 20, 1, -0.1), "commission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(ramp(3), agent.Noop{}, tt.o)
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestEmptySeriesFinishes(t *testing.T) {
	_, res := run(t, nil, agent.Noop{}, DefaultOptions())
	assert.Equal(t, Finished, res.Status)
	assert.Zero(t, res.BarsProcessed)
	assert.NotNil(t, res.Trades)
	assert.NotNil(t, res.DecisionLog)
}

func TestStateIsACopy(t *testing.T) {
	a := &script{at: map[int]agent.Decision{2: agent.Buy, 3: agent.Close}}
	eng, _ := run(t, ramp(10), a, opts(100, 20, 1, 0))

	st := eng.State()
	st.Trades[0].PnL = 1e6
	st.DecisionLog[0].Reasoning = "tampered"

	again := eng.State()
	assert.NotEqual(t, 1e6, again.Trades[0].PnL)
	assert.Equal(t, "scripted", again.DecisionLog[0].Reasoning)
}

func TestResultsJSONRoundTrip(t *testing.T) {
	a := &script{at: map[int]agent.Decision{2: agent.Buy, 5: agent.Close, 6: agent.Sell}}
	_, res := run(t, ramp(10), a, opts(100, 20, 2, 0.001))

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"decision":"BUY"`)
	assert.Contains(t, string(raw), `"status":"finished"`)

	var back Results
	require.NoError(t, json.Unmarshal(raw, &back))

	require.Len(t, back.DecisionLog, len(res.DecisionLog))
	for i := range res.DecisionLog {
		want, got := res.DecisionLog[i], back.DecisionLog[i]
		assert.True(t, want.Time.Equal(got.Time))
		got.Time = want.Time
		assert.Equal(t, want, got)
	}
	require.Len(t, back.Trades, 1)
	assert.Equal(t, res.Trades[0].PnL, back.Trades[0].PnL)
	assert.Equal(t, res.Trades[0].Fee, back.Trades[0].Fee)
	assert.True(t, res.Trades[0].EntryTime.Equal(back.Trades[0].EntryTime))
	assert.Equal(t, res.Status, back.Status)
	require.NotNil(t, back.OpenPosition)
	assert.Equal(t, ledger.Short, back.OpenPosition.Side)
}

func TestCompare(t *testing.T) {
	s := ramp(40)
	outs, err := Compare(context.Background(), s, opts(100, 20, 1, 0), 0, []Contender{
		{Name: "noop", Agent: agent.Noop{}},
		{Name: "scripted", Agent: &script{at: map[int]agent.Decision{10: agent.Buy, 20: agent.Close}}},
	})
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, "noop", outs[0].Name)
	assert.Zero(t, outs[0].Results.TotalTrades)
	assert.Equal(t, "scripted", outs[1].Name)
	assert.Equal(t, 1, outs[1].Results.TotalTrades)

	_, err = Compare(context.Background(), s, opts(100, 20, 1, 0), 0, []Contender{
		{Name: "bad", Agent: &script{fail: map[int]error{9: errors.New("nope")}}},
	})
	assert.ErrorContains(t, err, "bad:")
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	a := &script{hook: func(int) { once.Do(func() { close(started) }) }}

	eng, err := NewEngine(ramp(1000), a, opts(100, 20, 1, 0))
	require.NoError(t, err)

	done := make(chan Results)
	go func() {
		res, _ := eng.Run(context.Background(), 1000, 0)
		done <- res
	}()

	<-started
	eng.Stop()
	select {
	case res := <-done:
		assert.Equal(t, Stopped, res.Status)
		assert.Less(t, res.BarsProcessed, 800)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}
