package strategy

import (
	"testing"
	"time"

	"github.com/evdnx/gotrend/config"
	"github.com/evdnx/gotrend/indicator"
	"github.com/evdnx/gotrend/testutils"
	"github.com/evdnx/gotrend/types"
)

// stubIndicators lets a test dictate readiness and oscillator values per
// symbol without feeding hundreds of bars.
type stubIndicators struct {
	ready map[string]bool
	osc   map[string]indicator.MACDValue
	avg   map[string]float64
	rsi   float64
}

func newStubIndicators() *stubIndicators {
	return &stubIndicators{
		ready: map[string]bool{},
		osc:   map[string]indicator.MACDValue{},
		avg:   map[string]float64{},
	}
}

func (s *stubIndicators) IsReady(sym string) bool { return s.ready[sym] }

func (s *stubIndicators) Oscillator(sym string) (indicator.MACDValue, error) {
	if !s.ready[sym] {
		return indicator.MACDValue{}, indicator.ErrNotReady
	}
	return s.osc[sym], nil
}

func (s *stubIndicators) PriceAverage(sym string) (float64, error) {
	if !s.ready[sym] {
		return 0, indicator.ErrNotReady
	}
	return s.avg[sym], nil
}

func (s *stubIndicators) Momentum(string) (float64, bool) { return s.rsi, s.rsi != 0 }

// set makes sym ready with the given oscillator and trend average.
func (s *stubIndicators) set(sym string, macd, signal, fast, avg float64) {
	s.ready[sym] = true
	s.osc[sym] = indicator.MACDValue{Value: macd, Signal: signal, Fast: fast}
	s.avg[sym] = avg
}

// neutral makes sym ready with a zero delta.
func (s *stubIndicators) neutral(sym string) { s.set(sym, 0, 0, 100, 0) }

type harness struct {
	ctrl  *MACDTrailing
	exec  *testutils.MockExecutor
	ind   *stubIndicators
	notes *testutils.MockNotifier
	log   *testutils.MockLogger
}

func buildConfig(symbols ...config.Instrument) config.Config {
	cfg := config.Default()
	if len(symbols) > 0 {
		cfg.Instruments = symbols
	}
	cfg.Notify.Recipient = "investor@example.com"
	return cfg
}

func buildHarness(t *testing.T, cfg config.Config) *harness {
	h := &harness{
		exec:  testutils.NewMockExecutor(cfg.InitialCash),
		ind:   newStubIndicators(),
		notes: testutils.NewMockNotifier(),
		log:   testutils.NewMockLogger(),
	}
	ctrl, err := NewMACDTrailing(cfg, h.exec, h.ind, h.notes, h.log)
	if err != nil {
		t.Fatalf("NewMACDTrailing failed: %v", err)
	}
	h.ctrl = ctrl
	return h
}

var day0 = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

// tick builds a tick from symbol/close pairs.
func tick(day int, closes map[string]float64) types.Tick {
	bars := make(map[string]types.Bar, len(closes))
	for sym, c := range closes {
		bars[sym] = types.Bar{Symbol: sym, Time: day0.AddDate(0, 0, day), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return types.Tick{Time: day0.AddDate(0, 0, day), Bars: bars}
}

func countKind(ins []types.Instruction, kind types.InstructionKind) int {
	n := 0
	for _, in := range ins {
		if in.Kind == kind {
			n++
		}
	}
	return n
}
