package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/evdnx/gotrend/config"
	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/types"
	"golang.org/x/time/rate"
)

// BarsAPI is the subset of *marketdata.Client the feed needs.
type BarsAPI interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// Alpaca serves daily bars from the Alpaca market data API. The first call
// to Next downloads enough history to warm the indicators up; afterwards the
// feed polls for sessions that closed since the last tick. History ticks are
// tagged as such. A session is only emitted once its UTC date has passed, so
// partial bars are never seen.
type Alpaca struct {
	client  BarsAPI
	symbols []string
	feed    marketdata.Feed
	history int
	poll    time.Duration
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time

	started bool
	last    time.Time
	queue   []types.Tick
}

// NewAlpaca builds a live feed for the configured universe.
func NewAlpaca(cfg config.Config, log logger.Logger) (*Alpaca, error) {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
	})
	return NewAlpacaFromClient(client, cfg, log)
}

// NewAlpacaFromClient builds the feed on top of an existing bars client.
func NewAlpacaFromClient(client BarsAPI, cfg config.Config, log logger.Logger) (*Alpaca, error) {
	poll, err := time.ParseDuration(cfg.Alpaca.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("alpaca poll interval: %w", err)
	}
	return newAlpaca(client, cfg.Symbols(), marketdata.Feed(cfg.Alpaca.Feed),
		cfg.WarmUpBars+cfg.MACD.Slow, poll, cfg.Alpaca.RPS, log), nil
}

func newAlpaca(client BarsAPI, symbols []string, feed marketdata.Feed, history int,
	poll time.Duration, rps float64, log logger.Logger) *Alpaca {
	if rps <= 0 {
		rps = 3
	}
	return &Alpaca{
		client:  client,
		symbols: append([]string(nil), symbols...),
		feed:    feed,
		history: history,
		poll:    poll,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log,
		now:     time.Now,
	}
}

func (a *Alpaca) Next(ctx context.Context) (types.Tick, error) {
	for len(a.queue) == 0 {
		if !a.started {
			// About 7 calendar days per 5 sessions, plus room for holidays.
			days := a.history*7/5 + 15
			start := a.now().UTC().AddDate(0, 0, -days)
			if err := a.fetch(ctx, start, true); err != nil {
				return types.Tick{}, fmt.Errorf("warm-up history: %w", err)
			}
			a.started = true
			a.log.Info("history_loaded", logger.Int("sessions", len(a.queue)))
			continue
		}

		timer := time.NewTimer(a.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.Tick{}, ctx.Err()
		case <-timer.C:
		}
		if err := a.fetch(ctx, a.last.AddDate(0, 0, 1), false); err != nil {
			if ctx.Err() != nil {
				return types.Tick{}, ctx.Err()
			}
			a.log.Warn("bars_poll_failed", logger.Err(err))
		}
	}
	tk := a.queue[0]
	a.queue = a.queue[1:]
	return tk, nil
}

// fetch queues every completed session after a.last starting at start.
func (a *Alpaca) fetch(ctx context.Context, start time.Time, history bool) error {
	end := a.now().UTC().Truncate(24 * time.Hour)
	if !start.Before(end) {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	res, err := a.client.GetMultiBars(a.symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      a.feed,
	})
	if err != nil {
		return err
	}
	var bars []types.Bar
	for sym, series := range res {
		for _, b := range series {
			bars = append(bars, types.Bar{
				Symbol: sym,
				Time:   b.Timestamp,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: float64(b.Volume),
			})
		}
	}
	for _, tk := range group(bars) {
		if !a.last.IsZero() && !tk.Time.After(a.last) {
			continue
		}
		tk.History = history
		a.queue = append(a.queue, tk)
		a.last = tk.Time
	}
	return nil
}
