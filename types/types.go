package types

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type Order struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64 // limit price; 0 = market
	// meta
	Comment string
}

// Bar is one daily OHLCV candle for a single symbol.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Tick groups the bars of every symbol that share a session date.
type Tick struct {
	Time time.Time
	Bars map[string]Bar
	// History marks a past session replayed to warm the indicators up.
	// Such ticks never produce orders.
	History bool
}

// Bar returns the bar for symbol, if the tick carries one.
func (t Tick) Bar(symbol string) (Bar, bool) {
	b, ok := t.Bars[symbol]
	return b, ok
}

// InstructionKind names a directive sent to the execution venue.
type InstructionKind string

const (
	SetHoldings  InstructionKind = "SET_HOLDINGS"
	Liquidate    InstructionKind = "LIQUIDATE"
	LiquidateAll InstructionKind = "LIQUIDATE_ALL"
)

// Instruction is a directive as issued by the controller. Symbol is empty
// for LiquidateAll; Weight is only meaningful for SetHoldings.
type Instruction struct {
	Kind   InstructionKind
	Symbol string
	Weight float64
}
