package executor

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/risk"
	"github.com/evdnx/gotrend/types"
	"go.uber.org/multierr"
)

var (
	ErrInsufficientCash = errors.New("executor: insufficient cash")
	ErrNoPrice          = errors.New("executor: no price for symbol")
)

// Executor is the execution venue. Calls are directives; the caller logs
// failures and moves on.
type Executor interface {
	// SetHoldings trades symbol to weight*total portfolio value.
	SetHoldings(symbol string, weight float64) error
	Liquidate(symbol string) error
	LiquidateAll() error
	// Holding is the signed quantity currently owned.
	Holding(symbol string) (float64, error)
	// Equity is the total portfolio value: cash plus marked positions.
	Equity() (float64, error)
}

// Marker is implemented by venues that price positions from the feed.
type Marker interface {
	Mark(symbol string, price float64)
}

// Paper is a simple paper venue – perfect fills at the last mark, whole
// shares, no slippage, no shorting through SetHoldings.
type Paper struct {
	mu        sync.RWMutex
	cash      float64
	positions map[string]float64 // qty (positive = long, negative = short)
	marks     map[string]float64
	fills     []types.Order
	log       logger.Logger
}

func NewPaper(startCash float64, log logger.Logger) *Paper {
	return &Paper{
		cash:      startCash,
		positions: make(map[string]float64),
		marks:     make(map[string]float64),
		log:       log,
	}
}

// Mark records the last price of symbol. Non-finite or non-positive prices
// are dropped and the previous mark is kept.
func (p *Paper) Mark(symbol string, price float64) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		p.log.Warn("mark_rejected", logger.String("symbol", symbol), logger.Float64("price", price))
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

func (p *Paper) SetHoldings(symbol string, weight float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.marks[symbol]
	if !ok || price <= 0 {
		return fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	target := risk.TargetQty(p.equityLocked(), weight, price, 0)
	return p.fillLocked(symbol, target-p.positions[symbol], price, "set_holdings")
}

func (p *Paper) Liquidate(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flattenLocked(symbol)
}

func (p *Paper) LiquidateAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	syms := make([]string, 0, len(p.positions))
	for s := range p.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	var err error
	for _, s := range syms {
		err = multierr.Append(err, p.flattenLocked(s))
	}
	return err
}

func (p *Paper) Holding(symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[symbol], nil
}

func (p *Paper) Equity() (float64, error) { return p.equity(), nil }

// Cash is the uninvested balance.
func (p *Paper) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// Fills returns a copy of every executed order.
func (p *Paper) Fills() []types.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Order, len(p.fills))
	copy(out, p.fills)
	return out
}

func (p *Paper) equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equityLocked()
}

func (p *Paper) equityLocked() float64 {
	eq := p.cash
	for s, q := range p.positions {
		eq += q * p.marks[s]
	}
	return eq
}

func (p *Paper) flattenLocked(symbol string) error {
	qty := p.positions[symbol]
	if qty == 0 {
		return nil
	}
	price, ok := p.marks[symbol]
	if !ok || price <= 0 {
		return fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	return p.fillLocked(symbol, -qty, price, "liquidate")
}

// fillLocked trades delta shares (positive buys) at price.
func (p *Paper) fillLocked(symbol string, delta, price float64, comment string) error {
	if delta == 0 {
		return nil
	}
	cost := delta * price
	if delta > 0 && cost > p.cash {
		return fmt.Errorf("%s: need %.2f, have %.2f: %w", symbol, cost, p.cash, ErrInsufficientCash)
	}
	p.cash -= cost
	p.positions[symbol] += delta
	if p.positions[symbol] == 0 {
		delete(p.positions, symbol)
	}
	side := types.Buy
	if delta < 0 {
		side = types.Sell
	}
	o := types.Order{Symbol: symbol, Side: side, Qty: math.Abs(delta), Price: price, Comment: comment}
	p.fills = append(p.fills, o)
	p.log.Info("paper_fill",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Float64("qty", o.Qty),
		logger.Float64("price", price),
		logger.Float64("cash", p.cash),
	)
	return nil
}
