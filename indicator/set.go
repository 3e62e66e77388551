package indicator

import (
	"errors"
	"fmt"

	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/types"
)

// Set owns one Tracker per symbol of the universe.
type Set struct {
	trackers map[string]*Tracker
	log      logger.Logger
}

func NewSet(symbols []string, p Params, log logger.Logger) (*Set, error) {
	s := &Set{trackers: make(map[string]*Tracker, len(symbols)), log: log}
	for _, sym := range symbols {
		tr, err := NewTracker(sym, p)
		if err != nil {
			return nil, err
		}
		s.trackers[sym] = tr
	}
	return s, nil
}

// Update feeds every bar of the tick to its tracker. Bars for symbols
// outside the universe are ignored.
func (s *Set) Update(tick types.Tick) {
	for sym, bar := range tick.Bars {
		tr, ok := s.trackers[sym]
		if !ok {
			continue
		}
		err := tr.Update(bar)
		switch {
		case err == nil:
		case errors.Is(err, ErrBadBar):
			s.log.Warn("bar_rejected", logger.String("symbol", sym), logger.Err(err))
		default:
			s.log.Debug("diagnostics_update_failed", logger.String("symbol", sym), logger.Err(err))
		}
	}
}

func (s *Set) Tracker(symbol string) (*Tracker, bool) {
	tr, ok := s.trackers[symbol]
	return tr, ok
}

func (s *Set) IsReady(symbol string) bool {
	tr, ok := s.trackers[symbol]
	return ok && tr.IsReady()
}

func (s *Set) Oscillator(symbol string) (MACDValue, error) {
	tr, ok := s.trackers[symbol]
	if !ok {
		return MACDValue{}, fmt.Errorf("unknown symbol %q: %w", symbol, ErrNotReady)
	}
	return tr.Oscillator()
}

func (s *Set) PriceAverage(symbol string) (float64, error) {
	tr, ok := s.trackers[symbol]
	if !ok {
		return 0, fmt.Errorf("unknown symbol %q: %w", symbol, ErrNotReady)
	}
	return tr.PriceAverage()
}

// Momentum returns the diagnostic RSI of symbol.
func (s *Set) Momentum(symbol string) (float64, bool) {
	tr, ok := s.trackers[symbol]
	if !ok {
		return 0, false
	}
	return tr.RSI()
}
