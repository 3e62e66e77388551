// Package indicator keeps the per-symbol trend state the controller reads:
// an exponential moving average of price and a MACD oscillator, both built
// on goti moving averages.
package indicator

import (
	"fmt"

	"github.com/evdnx/goti"
)

// MACDValue is a snapshot of the oscillator.
type MACDValue struct {
	Value     float64 // fast - slow
	Signal    float64 // EMA of Value
	Fast      float64
	Slow      float64
	Histogram float64 // Value - Signal
}

// MACD is the moving-average convergence/divergence oscillator. The signal
// line only receives values once both the fast and slow averages are ready.
type MACD struct {
	fast, slow, signal    *goti.MovingAverage
	fastN, slowN, signalN int
}

func NewMACD(fast, slow, signal int) (*MACD, error) {
	f, err := goti.NewMovingAverage(goti.EMAMovingAverage, fast)
	if err != nil {
		return nil, fmt.Errorf("macd fast: %w", err)
	}
	s, err := goti.NewMovingAverage(goti.EMAMovingAverage, slow)
	if err != nil {
		return nil, fmt.Errorf("macd slow: %w", err)
	}
	sig, err := goti.NewMovingAverage(goti.EMAMovingAverage, signal)
	if err != nil {
		return nil, fmt.Errorf("macd signal: %w", err)
	}
	return &MACD{fast: f, slow: s, signal: sig, fastN: fast, slowN: slow, signalN: signal}, nil
}

// Update feeds one close. Prices must be positive and finite.
func (m *MACD) Update(price float64) error {
	if err := m.fast.Add(price); err != nil {
		return err
	}
	if err := m.slow.Add(price); err != nil {
		return err
	}
	f, errF := m.fast.Calculate()
	s, errS := m.slow.Calculate()
	if errF != nil || errS != nil {
		return nil
	}
	// The line goes negative in downtrends, hence AddValue.
	return m.signal.AddValue(f - s)
}

func (m *MACD) Ready() bool {
	_, err := m.signal.Calculate()
	return err == nil
}

// WarmUp is the number of bars needed before Ready reports true.
func (m *MACD) WarmUp() int {
	return max(m.fastN, m.slowN) + m.signalN - 1
}

func (m *MACD) Value() (MACDValue, error) {
	sig, err := m.signal.Calculate()
	if err != nil {
		return MACDValue{}, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	f, _ := m.fast.Calculate()
	s, _ := m.slow.Calculate()
	v := f - s
	return MACDValue{
		Value:     v,
		Signal:    sig,
		Fast:      f,
		Slow:      s,
		Histogram: v - sig,
	}, nil
}
