package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/internal/logger"
	"github.com/rustyeddy/tradereplay/ledger"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/orderflow"
)

var (
	ErrAlreadyRun = errors.New("replay: engine has already run")
	ErrNoAgent    = errors.New("replay: agent is required")
)

// AgentError is returned when an agent fails to decide. The run stops with
// status Failed at Bar.
type AgentError struct {
	Bar int
	Err error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("replay: agent failed at bar %d: %v", e.Bar, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// WarmupFunc returns how many leading bars are skipped for a series of
// total bars.
type WarmupFunc func(total int) int

// DefaultWarmup skips a fifth of the series, at most 500 bars.
func DefaultWarmup(total int) int {
	return min(500, total/5)
}

// FixedWarmup skips exactly n bars.
func FixedWarmup(n int) WarmupFunc {
	return func(int) int { return n }
}

// Options are the economic parameters of a run.
type Options struct {
	InitialCapital float64
	PositionSize   float64 // capital committed per position
	Leverage       float64
	Commission     float64 // per side, fraction of notional
	Warmup         WarmupFunc
}

func DefaultOptions() Options {
	return Options{
		InitialCapital: 100,
		PositionSize:   20,
		Leverage:       1,
		Commission:     0.001,
		Warmup:         DefaultWarmup,
	}
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	switch {
	case o.InitialCapital <= 0:
		return fmt.Errorf("initial capital must be positive")
	case o.PositionSize <= 0:
		return fmt.Errorf("position size must be positive")
	case o.Leverage <= 0:
		return fmt.Errorf("leverage must be positive")
	case o.Commission < 0:
		return fmt.Errorf("commission cannot be negative")
	}
	return nil
}

// BarFunc and TradeFunc observe a run. They are called synchronously on the
// run goroutine; errors and panics are logged and otherwise ignored.
type (
	BarFunc   func(BarEvent) error
	TradeFunc func(ledger.Trade) error
)

// Engine replays one series through one agent. An Engine runs once.
type Engine struct {
	series market.Series
	agent  agent.Agent
	opts   Options

	onBar   []BarFunc
	onTrade []TradeFunc

	stop atomic.Bool

	mu     sync.RWMutex
	status Status
	cur    int
	book   *ledger.Book
	log    []DecisionLogEntry
	curve  []EquityPoint
}

// NewEngine checks the options and returns an idle engine.
func NewEngine(series market.Series, a agent.Agent, opts Options) (*Engine, error) {
	if a == nil {
		return nil, ErrNoAgent
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if opts.Warmup == nil {
		opts.Warmup = DefaultWarmup
	}
	return &Engine{
		series: series,
		agent:  a,
		opts:   opts,
		book:   ledger.NewBook(opts.InitialCapital, opts.Commission),
	}, nil
}

// OnBar registers a bar observer. Register observers before Run.
func (e *Engine) OnBar(fn BarFunc) { e.onBar = append(e.onBar, fn) }

// OnTrade registers a trade observer. Register observers before Run.
func (e *Engine) OnTrade(fn TradeFunc) { e.onTrade = append(e.onTrade, fn) }

// Stop asks a running replay to halt before its next bar. Safe to call
// from any goroutine, before or during Run.
func (e *Engine) Stop() { e.stop.Store(true) }

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// StartIndex is the first bar Run will hand to the agent. It is never
// negative.
func (e *Engine) StartIndex(startBar int) int {
	return max(0, startBar, e.opts.Warmup(len(e.series)))
}

// Run replays bars from StartIndex(startBar) to the end of the series.
// With speed > 0 it waits 1/speed seconds between bars. Cancelling ctx
// behaves like Stop. Liquidation, stopping and running out of data are
// terminal states, not errors; the only errors are a second call to Run
// and an agent failure.
func (e *Engine) Run(ctx context.Context, speed float64, startBar int) (Results, error) {
	e.mu.Lock()
	if e.status != Idle {
		e.mu.Unlock()
		return Results{}, ErrAlreadyRun
	}
	e.status = Running
	e.mu.Unlock()

	start := e.StartIndex(startBar)
	logger.Debugf("[replay] %d bars, starting at %d", len(e.series), start)

	var delay time.Duration
	if speed > 0 {
		delay = time.Duration(float64(time.Second) / speed)
	}

	final := Finished
	var runErr error
	for i := start; i < len(e.series); i++ {
		if e.stop.Load() || ctx.Err() != nil {
			final = Stopped
			break
		}

		status, err := e.step(i)
		if err != nil {
			final, runErr = Failed, err
			logger.Errorf("[replay] %v", err)
			break
		}
		if status == Liquidated {
			final = Liquidated
			break
		}

		if delay > 0 && i < len(e.series)-1 {
			_ = sleepWithContext(ctx, delay)
		}
	}

	e.mu.Lock()
	e.status = final
	e.mu.Unlock()

	return e.Results(), runErr
}

// step processes bar i. It returns Liquidated when the account is wiped
// out on this bar, otherwise Running.
func (e *Engine) step(i int) (Status, error) {
	bar := e.series[i]
	visible := e.series.Prefix(i)
	flow := orderflow.Compute(visible)

	d, reasoning, err := e.decide(visible, flow)
	if err != nil {
		return Failed, &AgentError{Bar: i, Err: err}
	}

	var closed []ledger.Trade

	e.mu.Lock()
	e.cur = i
	switch d {
	case agent.Buy:
		e.book.Open(ledger.Long, bar.Close, bar.Time, e.opts.PositionSize, e.opts.Leverage)
	case agent.Sell:
		e.book.Open(ledger.Short, bar.Close, bar.Time, e.opts.PositionSize, e.opts.Leverage)
	case agent.Close:
		if t, ok := e.book.Close(bar.Close, bar.Time, ledger.ReasonSignal); ok {
			closed = append(closed, t)
		}
	}

	equity := e.book.MarkToMarket(bar.Close)
	if equity <= 0 {
		t, ok := e.book.Close(bar.Close, bar.Time, ledger.ReasonLiquidation)
		e.mu.Unlock()
		if ok {
			closed = append(closed, t)
		}
		logger.Warnf("[replay] liquidated at bar %d (%s): equity %.4f",
			i, bar.Time.Format(time.RFC3339), equity)
		e.emitTrades(closed)
		return Liquidated, nil
	}

	entry := DecisionLogEntry{
		Time:          bar.Time,
		Bar:           i,
		Price:         bar.Close,
		Decision:      d,
		Reasoning:     reasoning,
		Position:      e.book.Side(),
		UnrealizedPnL: e.book.Unrealized(bar.Close),
	}
	e.log = append(e.log, entry)
	e.curve = append(e.curve, EquityPoint{Time: bar.Time, Equity: equity})
	cash := e.book.Equity()
	e.mu.Unlock()

	e.emitTrades(closed)
	ev := BarEvent{Entry: entry, Equity: equity, Cash: cash}
	for _, fn := range e.onBar {
		e.notify("bar", func() error { return fn(ev) })
	}
	return Running, nil
}

// decide runs the agent, turning a panic into an error.
func (e *Engine) decide(visible market.Series, flow orderflow.Metrics) (d agent.Decision, reasoning string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	d, err = e.agent.Analyze(visible, flow)
	if err != nil {
		return agent.Hold, "", err
	}
	return d, e.agent.Reasoning(), nil
}

func (e *Engine) emitTrades(trades []ledger.Trade) {
	for _, t := range trades {
		for _, fn := range e.onTrade {
			e.notify("trade", func() error { return fn(t) })
		}
	}
}

func (e *Engine) notify(kind string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[replay] %s observer panicked: %v", kind, r)
		}
	}()
	if err := fn(); err != nil {
		logger.Warnf("[replay] %s observer: %v", kind, err)
	}
}

// State returns a copy of the current replay state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := State{
		Status:      e.status,
		CurrentBar:  e.cur,
		Equity:      e.book.Equity(),
		Trades:      e.book.Trades(),
		DecisionLog: append([]DecisionLogEntry(nil), e.log...),
		EquityCurve: append([]EquityPoint(nil), e.curve...),
	}
	if p, ok := e.book.Position(); ok {
		st.Position = &p
	}
	return st
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
