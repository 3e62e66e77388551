package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/evdnx/goti"
	"github.com/evdnx/gotrend/types"
)

// ErrNotReady is returned by value accessors before the tracker has seen
// enough bars. Reading values early is a caller bug.
var ErrNotReady = errors.New("indicator: not ready")

// ErrBadBar marks a bar whose close cannot enter an average.
var ErrBadBar = errors.New("indicator: invalid bar")

// Params are the tracker windows.
type Params struct {
	Fast, Slow, Signal int
	Trend              int
}

// DefaultParams is MACD(12,26,9) with a 200 bar trend average.
func DefaultParams() Params {
	return Params{Fast: 12, Slow: 26, Signal: 9, Trend: 200}
}

// Tracker holds the indicator state of one symbol.
type Tracker struct {
	symbol string
	macd   *MACD
	trend  *goti.MovingAverage
	suite  *goti.IndicatorSuite
	bars   int
}

func NewTracker(symbol string, p Params) (*Tracker, error) {
	if p.Fast <= 0 || p.Slow <= 0 || p.Signal <= 0 || p.Trend <= 0 {
		return nil, fmt.Errorf("indicator: invalid windows %+v", p)
	}
	macd, err := NewMACD(p.Fast, p.Slow, p.Signal)
	if err != nil {
		return nil, fmt.Errorf("indicator: %w", err)
	}
	trend, err := goti.NewMovingAverage(goti.EMAMovingAverage, p.Trend)
	if err != nil {
		return nil, fmt.Errorf("indicator: trend average: %w", err)
	}
	suite, err := goti.NewIndicatorSuiteWithConfig(goti.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("indicator: goti suite: %w", err)
	}
	return &Tracker{
		symbol: symbol,
		macd:   macd,
		trend:  trend,
		suite:  suite,
	}, nil
}

// Update ingests one bar. A bar with a non-finite or non-positive close is
// rejected with ErrBadBar and leaves the trend state untouched; any other
// error only means the diagnostics suite refused the bar.
func (t *Tracker) Update(b types.Bar) error {
	if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) || b.Close <= 0 {
		return fmt.Errorf("%s close %v: %w", t.symbol, b.Close, ErrBadBar)
	}
	if err := t.macd.Update(b.Close); err != nil {
		return fmt.Errorf("indicator: %s macd: %w", t.symbol, err)
	}
	if err := t.trend.Add(b.Close); err != nil {
		return fmt.Errorf("indicator: %s trend: %w", t.symbol, err)
	}
	t.bars++
	if err := t.suite.Add(b.High, b.Low, b.Close, b.Volume); err != nil {
		return fmt.Errorf("indicator: %s diagnostics: %w", t.symbol, err)
	}
	return nil
}

// IsReady is true once both the oscillator and the trend average are warm.
func (t *Tracker) IsReady() bool {
	if !t.macd.Ready() {
		return false
	}
	_, err := t.trend.Calculate()
	return err == nil
}

// Bars counts ingested bars.
func (t *Tracker) Bars() int { return t.bars }

func (t *Tracker) Oscillator() (MACDValue, error) {
	if !t.IsReady() {
		return MACDValue{}, fmt.Errorf("%s oscillator after %d bars: %w", t.symbol, t.bars, ErrNotReady)
	}
	return t.macd.Value()
}

func (t *Tracker) PriceAverage() (float64, error) {
	if !t.IsReady() {
		return 0, fmt.Errorf("%s price average after %d bars: %w", t.symbol, t.bars, ErrNotReady)
	}
	v, err := t.trend.Calculate()
	if err != nil {
		return 0, fmt.Errorf("%s price average: %w: %w", t.symbol, ErrNotReady, err)
	}
	return v, nil
}

// RSI is informational only; decisions never depend on it.
func (t *Tracker) RSI() (float64, bool) {
	v, err := t.suite.GetRSI().Calculate()
	if err != nil {
		return 0, false
	}
	return v, true
}
