package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/evdnx/gotrend/config"
	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/risk"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

// tradingAPI is the subset of *alpaca.Client the venue needs.
type tradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	CancelOrder(orderID string) error
	CancelAllOrders() error
}

// quoteAPI is the subset of *marketdata.Client the venue needs.
type quoteAPI interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// Alpaca routes directives to an Alpaca brokerage account as market orders.
// Every API call goes through a token bucket and a circuit breaker.
type Alpaca struct {
	trading tradingAPI
	quotes  quoteAPI
	feed    marketdata.Feed
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     logger.Logger
}

// NewAlpaca builds a venue from credentials.
func NewAlpaca(cfg config.Alpaca, log logger.Logger) *Alpaca {
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	quotes := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})
	return newAlpaca(trading, quotes, cfg, log)
}

func newAlpaca(trading tradingAPI, quotes quoteAPI, cfg config.Alpaca, log logger.Logger) *Alpaca {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 3
	}
	return &Alpaca{
		trading: trading,
		quotes:  quotes,
		feed:    marketdata.Feed(cfg.Feed),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: NewBreaker("alpaca"),
		timeout: 30 * time.Second,
		log:     log,
	}
}

// NewBreaker opens after three consecutive failures or a 5% failure rate
// over at least 20 requests, and lets a trial call through after a minute.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	return gobreaker.NewCircuitBreaker(st)
}

func (a *Alpaca) call(op string, fn func() (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("alpaca %s: %w", op, err)
	}
	v, err := a.breaker.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("alpaca %s: %w", op, err)
	}
	return v, nil
}

func (a *Alpaca) Equity() (float64, error) {
	v, err := a.call("get_account", func() (interface{}, error) { return a.trading.GetAccount() })
	if err != nil {
		return 0, err
	}
	return v.(*alpaca.Account).PortfolioValue.InexactFloat64(), nil
}

func (a *Alpaca) positions() ([]alpaca.Position, error) {
	v, err := a.call("get_positions", func() (interface{}, error) { return a.trading.GetPositions() })
	if err != nil {
		return nil, err
	}
	return v.([]alpaca.Position), nil
}

func (a *Alpaca) position(symbol string) (decimal.Decimal, error) {
	all, err := a.positions()
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range all {
		if p.Symbol == symbol {
			return p.Qty, nil
		}
	}
	return decimal.Zero, nil
}

func (a *Alpaca) openOrders(symbol string) ([]alpaca.Order, error) {
	v, err := a.call("get_orders", func() (interface{}, error) {
		return a.trading.GetOrders(alpaca.GetOrdersRequest{Status: "open", Symbols: []string{symbol}, Limit: 500})
	})
	if err != nil {
		return nil, err
	}
	var out []alpaca.Order
	for _, o := range v.([]alpaca.Order) {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

// pendingQty is the signed unfilled quantity of orders (positive buys).
func pendingQty(orders []alpaca.Order) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range orders {
		if o.Qty == nil {
			continue
		}
		rest := o.Qty.Sub(o.FilledQty)
		if o.Side == alpaca.Sell {
			rest = rest.Neg()
		}
		sum = sum.Add(rest)
	}
	return sum
}

// exposure is the filled position plus what open orders will add to it.
func (a *Alpaca) exposure(symbol string) (decimal.Decimal, error) {
	filled, err := a.position(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	open, err := a.openOrders(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return filled.Add(pendingQty(open)), nil
}

// Holding counts pending open orders as held, so an unfilled entry is not
// bought a second time.
func (a *Alpaca) Holding(symbol string) (float64, error) {
	qty, err := a.exposure(symbol)
	if err != nil {
		return 0, err
	}
	return qty.InexactFloat64(), nil
}

func (a *Alpaca) SetHoldings(symbol string, weight float64) error {
	equity, err := a.Equity()
	if err != nil {
		return err
	}
	v, err := a.call("latest_trade", func() (interface{}, error) {
		return a.quotes.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: a.feed})
	})
	if err != nil {
		return err
	}
	price := v.(*marketdata.Trade).Price
	if price <= 0 {
		return fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	current, err := a.exposure(symbol)
	if err != nil {
		return err
	}
	target := decimal.NewFromFloat(risk.TargetQty(equity, weight, price, 0))
	return a.order(symbol, target.Sub(current), "set_holdings")
}

// Liquidate cancels the open orders of symbol, then closes the filled
// position.
func (a *Alpaca) Liquidate(symbol string) error {
	open, err := a.openOrders(symbol)
	if err != nil {
		return err
	}
	for _, o := range open {
		id := o.ID
		if _, err := a.call("cancel_order", func() (interface{}, error) {
			return nil, a.trading.CancelOrder(id)
		}); err != nil {
			return err
		}
	}
	qty, err := a.position(symbol)
	if err != nil {
		return err
	}
	return a.order(symbol, qty.Neg(), "liquidate")
}

func (a *Alpaca) LiquidateAll() error {
	_, errs := a.call("cancel_all_orders", func() (interface{}, error) {
		return nil, a.trading.CancelAllOrders()
	})
	all, err := a.positions()
	if err != nil {
		return multierr.Append(errs, err)
	}
	for _, p := range all {
		errs = multierr.Append(errs, a.order(p.Symbol, p.Qty.Neg(), "liquidate_all"))
	}
	return errs
}

// order sends a market order for delta shares (positive buys).
func (a *Alpaca) order(symbol string, delta decimal.Decimal, reason string) error {
	if delta.IsZero() {
		return nil
	}
	side := alpaca.Buy
	if delta.IsNegative() {
		side = alpaca.Sell
	}
	qty := delta.Abs()
	req := alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: uuid.NewString(),
	}
	v, err := a.call("place_order", func() (interface{}, error) { return a.trading.PlaceOrder(req) })
	if err != nil {
		return err
	}
	o := v.(*alpaca.Order)
	a.log.Info("alpaca_order_placed",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.String("qty", qty.String()),
		logger.String("order_id", o.ID),
		logger.String("client_order_id", req.ClientOrderID),
		logger.String("reason", reason),
	)
	return nil
}
