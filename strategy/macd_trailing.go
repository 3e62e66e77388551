package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/gotrend/config"
	"github.com/evdnx/gotrend/executor"
	"github.com/evdnx/gotrend/indicator"
	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/metrics"
	"github.com/evdnx/gotrend/notify"
	"github.com/evdnx/gotrend/risk"
	"github.com/evdnx/gotrend/store"
	"github.com/evdnx/gotrend/types"
)

const (
	WarningSubject  = "Securities Warning"
	WarningBody     = "Possible changing market conditions. Monitor market and re-evaluate your portfolio."
	CriticalSubject = "Investment Balance Alert"
	CriticalBody    = "Trading has been stopped. Please look into issue."
)

// Indicators is the read side of the per-symbol indicator state.
type Indicators interface {
	IsReady(symbol string) bool
	Oscillator(symbol string) (indicator.MACDValue, error)
	PriceAverage(symbol string) (float64, error)
	// Momentum is an optional diagnostic (RSI) quoted in alerts.
	Momentum(symbol string) (float64, bool)
}

// MACDTrailing goes long a fixed weight when the MACD pulls away from its
// signal line, exits on a bearish divergence below the trend average,
// protects every symbol with a trailing stop and halts the whole account
// on a deep drawdown.
type MACDTrailing struct {
	*BaseStrategy
	instruments []config.Instrument
	rules       config.Rules
	ind         Indicators
	stops       *risk.StopBook
	kill        *risk.KillSwitch
}

func NewMACDTrailing(cfg config.Config, exec executor.Executor, ind Indicators,
	n notify.Notifier, log logger.Logger) (*MACDTrailing, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	instruments := append([]config.Instrument(nil), cfg.Instruments...)
	return &MACDTrailing{
		BaseStrategy: NewBaseStrategy(exec, n, cfg.Notify.Recipient, log),
		instruments:  instruments,
		rules:        cfg.Rules,
		ind:          ind,
		stops:        risk.NewStopBook(cfg.Rules.TrailingStopFactor, cfg.Rules.PostStopFactor, cfg.Symbols()),
		kill:         risk.NewKillSwitch(cfg.InitialCash, cfg.Rules.DrawdownFloorFactor),
	}, nil
}

// OnTick runs the full decision procedure for one daily tick.
func (m *MACDTrailing) OnTick(tick types.Tick) {
	if m.kill.Halted() {
		return
	}
	for _, in := range m.instruments {
		bar, ok := tick.Bar(in.Symbol)
		if !ok {
			m.Log.Debug("bar_missing", logger.String("symbol", in.Symbol))
			continue
		}
		if !validPrice(bar.Close) {
			m.Log.Warn("bar_invalid", logger.String("symbol", in.Symbol), logger.Float64("close", bar.Close))
			continue
		}
		m.evaluate(in, bar.Close, true)
	}
	m.checkDrawdown()
}

// WarmUp replays a past session. Stops trail and re-base exactly as in
// OnTick, with every position taken as flat, but no directive reaches the
// venue, no alert is sent and the drawdown check does not run.
func (m *MACDTrailing) WarmUp(tick types.Tick) {
	if m.kill.Halted() {
		return
	}
	for _, in := range m.instruments {
		bar, ok := tick.Bar(in.Symbol)
		if !ok || !validPrice(bar.Close) {
			continue
		}
		m.evaluate(in, bar.Close, false)
	}
}

// evaluate applies, in this order: entry, signal exit, stop breach (at most
// one of the three), then the trailing update and the early warning. The
// breach and warning checks therefore see the stop set by the previous
// close. With live unset, holdings read as zero and directives and alerts
// are only logged.
func (m *MACDTrailing) evaluate(in config.Instrument, price float64, live bool) {
	sym := in.Symbol
	if !m.ind.IsReady(sym) {
		return
	}
	osc, err := m.ind.Oscillator(sym)
	if err != nil {
		m.Log.Error("indicator_read_failed", logger.String("symbol", sym), logger.Err(err))
		return
	}
	trend, err := m.ind.PriceAverage(sym)
	if err != nil {
		m.Log.Error("indicator_read_failed", logger.String("symbol", sym), logger.Err(err))
		return
	}
	delta, ok := SignalDelta(osc)
	if !ok {
		m.Log.Warn("delta_undefined",
			logger.String("symbol", sym),
			logger.Float64("macd", osc.Value),
			logger.Float64("signal", osc.Signal),
			logger.Float64("fast", osc.Fast),
		)
		return
	}
	var holding float64
	if live {
		holding, err = m.Exec.Holding(sym)
		if err != nil {
			m.Log.Error("holding_unavailable", logger.String("symbol", sym), logger.Err(err))
			return
		}
	}

	tol := m.rules.Tolerance
	switch {
	case holding <= 0 && delta > tol:
		if live {
			m.setHoldings(sym, in.Weight, "entry")
		} else {
			m.suppressed(types.SetHoldings, sym, "entry")
		}

	case holding > 0 && delta < -tol && osc.Value > tol && price < trend:
		m.liquidate(sym, "signal_exit")

	case m.stops.Breached(sym, price):
		before := m.stops.Get(sym)
		if live {
			m.liquidate(sym, "stop_breach")
		} else {
			m.suppressed(types.Liquidate, sym, "stop_breach")
		}
		after := m.stops.Reset(sym)
		m.Log.Warn("stop_breached",
			logger.String("symbol", sym),
			logger.Float64("close", price),
			logger.Float64("stop", before.Stop),
			logger.Float64("new_highest", after.Highest),
			logger.Float64("new_stop", after.Stop),
		)
	}

	if m.stops.Trail(sym, price) {
		m.Log.Debug("stop_trailed",
			logger.String("symbol", sym),
			logger.Float64("highest", m.stops.Get(sym).Highest),
			logger.Float64("stop", m.stops.Get(sym).Stop),
		)
	}
	st := m.stops.Get(sym)
	metrics.StopPrice.WithLabelValues(sym).Set(st.Stop)

	if live && price < m.rules.WarningFactor*st.Stop {
		m.notify("warning", WarningSubject, m.warningBody(sym, price, st))
	}
}

func (m *MACDTrailing) suppressed(kind types.InstructionKind, sym, reason string) {
	m.Log.Debug("order_suppressed",
		logger.String("kind", string(kind)),
		logger.String("symbol", sym),
		logger.String("reason", reason),
	)
}

func (m *MACDTrailing) warningBody(sym string, price float64, st risk.StopState) string {
	detail := fmt.Sprintf("%s closed at %.2f against a stop of %.2f", sym, price, st.Stop)
	if rsi, ok := m.ind.Momentum(sym); ok {
		detail += fmt.Sprintf(" (RSI %.1f)", rsi)
	}
	return detail + ". " + WarningBody
}

func (m *MACDTrailing) checkDrawdown() {
	equity, err := m.Exec.Equity()
	if err != nil {
		m.Log.Error("equity_unavailable", logger.Err(err))
		return
	}
	if math.IsNaN(equity) || math.IsInf(equity, 0) {
		m.Log.Error("equity_unavailable", logger.Float64("equity", equity))
		return
	}
	metrics.EquityGauge.Set(equity)
	if !m.kill.Check(equity) {
		return
	}
	metrics.HaltedGauge.Set(1)
	m.Log.Error("kill_switch_tripped",
		logger.Float64("equity", equity),
		logger.Float64("floor", m.kill.Floor()),
	)
	m.liquidateAll("drawdown")
	m.notify("critical", CriticalSubject,
		fmt.Sprintf("Portfolio value %.2f fell below %.2f. %s", equity, m.kill.Floor(), CriticalBody))
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// SignalDelta is (macd - signal) / fast. It is undefined when fast is zero
// or the result is not finite.
func SignalDelta(v indicator.MACDValue) (float64, bool) {
	if v.Fast == 0 {
		return 0, false
	}
	d := (v.Value - v.Signal) / v.Fast
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return d, true
}

func (m *MACDTrailing) Halted() bool             { return m.kill.Halted() }
func (m *MACDTrailing) State() risk.AccountState { return m.kill.State() }

// Stop returns the trailing stop state of symbol.
func (m *MACDTrailing) Stop(symbol string) risk.StopState { return m.stops.Get(symbol) }

// Snapshot captures the mutable controller state.
func (m *MACDTrailing) Snapshot() store.Snapshot {
	return store.Snapshot{
		Halted:    m.kill.Halted(),
		Stops:     m.stops.Snapshot(),
		UpdatedAt: time.Now().UTC(),
	}
}

// Restore loads stops from a snapshot. A halted snapshot halts the
// controller; an active one never re-enables a halted controller.
func (m *MACDTrailing) Restore(s store.Snapshot) {
	m.stops.Restore(s.Stops)
	if s.Halted && m.kill.Trip() {
		metrics.HaltedGauge.Set(1)
		m.Log.Warn("restored_halted_state")
	}
}
