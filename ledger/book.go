package ledger

import "time"

// Book tracks realized equity, at most one open position and the closed
// trades, in close order.
type Book struct {
	InitialCapital float64
	Commission     float64

	equity   float64
	position *Position
	trades   []Trade
}

func NewBook(initialCapital, commission float64) *Book {
	return &Book{
		InitialCapital: initialCapital,
		Commission:     commission,
		equity:         initialCapital,
	}
}

// Equity is realized equity: initial capital plus closed trade PnL.
func (b *Book) Equity() float64 { return b.equity }

// Position returns a copy of the open position, if any.
func (b *Book) Position() (Position, bool) {
	if b.position == nil {
		return Position{}, false
	}
	return *b.position, true
}

// Side is the open position's side, or Flat.
func (b *Book) Side() Side {
	if b.position == nil {
		return Flat
	}
	return b.position.Side
}

// Trades returns a copy of the trade log.
func (b *Book) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Open starts a position. It does nothing and returns false when one is
// already open.
func (b *Book) Open(side Side, price float64, at time.Time, size, leverage float64) bool {
	if b.position != nil || side == Flat {
		return false
	}
	b.position = &Position{
		Side:       side,
		EntryPrice: price,
		EntryTime:  at,
		Size:       size,
		Leverage:   leverage,
	}
	return true
}

// Close settles the open position at price and credits realized equity.
// It returns false when flat.
func (b *Book) Close(price float64, at time.Time, reason string) (Trade, bool) {
	if b.position == nil {
		return Trade{}, false
	}
	t := Settle(*b.position, price, at, b.Commission, b.InitialCapital, reason)
	b.equity += t.PnL
	b.trades = append(b.trades, t)
	b.position = nil
	return t, true
}

// Unrealized is the open position's PnL at mark, zero when flat.
func (b *Book) Unrealized(mark float64) float64 {
	if b.position == nil {
		return 0
	}
	return b.position.PnL(mark)
}

// MarkToMarket is realized equity plus unrealized PnL at mark.
func (b *Book) MarkToMarket(mark float64) float64 {
	return b.equity + b.Unrealized(mark)
}
