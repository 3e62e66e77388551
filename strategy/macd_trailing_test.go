package strategy

import (
	"errors"
	"math"
	"testing"

	"github.com/evdnx/gotrend/config"
	"github.com/evdnx/gotrend/indicator"
	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/risk"
	"github.com/evdnx/gotrend/store"
	"github.com/evdnx/gotrend/testutils"
	"github.com/evdnx/gotrend/types"
)

var adbe = config.Instrument{Symbol: "ADBE", Weight: 0.12}

func TestMACDTrailing_NoEntryInsideTolerance(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.ind.set("ADBE", 1.0, 0.9, 100, 0) // delta 0.001

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if got := h.exec.Instructions(); len(got) != 0 {
		t.Fatalf("expected no instruction, got %+v", got)
	}
}

func TestMACDTrailing_EntryAboveTolerance(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.ind.set("ADBE", 1.5, 0.9, 100, 0) // delta 0.006

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	got := h.exec.Instructions()
	if len(got) != 1 {
		t.Fatalf("expected exactly one instruction, got %+v", got)
	}
	want := types.Instruction{Kind: types.SetHoldings, Symbol: "ADBE", Weight: 0.12}
	if got[0] != want {
		t.Fatalf("expected %+v, got %+v", want, got[0])
	}
}

func TestMACDTrailing_EntryFlipsShort(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetHolding("ADBE", -5)
	h.ind.set("ADBE", 1.5, 0.9, 100, 0)

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if n := countKind(h.exec.Instructions(), types.SetHoldings); n != 1 {
		t.Fatalf("short holding must be flipped with SetHoldings, got %d", n)
	}
}

func TestMACDTrailing_NoEntryWhenAlreadyLong(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetHolding("ADBE", 10)
	h.ind.set("ADBE", 1.5, 0.9, 100, 0)

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if got := h.exec.Instructions(); len(got) != 0 {
		t.Fatalf("expected no instruction while long, got %+v", got)
	}
}

func TestMACDTrailing_StopBreachLiquidatesAndRebases(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetHolding("ADBE", 10)
	h.ind.neutral("ADBE")

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100})) // high 100, stop 95
	if st := h.ctrl.Stop("ADBE"); st.Stop != 95 {
		t.Fatalf("expected stop 95 after first close, got %+v", st)
	}
	h.ctrl.OnTick(tick(1, map[string]float64{"ADBE": 94}))

	got := h.exec.Instructions()
	if len(got) != 1 || got[0].Kind != types.Liquidate || got[0].Symbol != "ADBE" {
		t.Fatalf("expected one ADBE liquidation, got %+v", got)
	}
	if st := h.ctrl.Stop("ADBE"); st.Highest != 95 || st.Stop != 76 {
		t.Fatalf("expected {95 76} after breach, got %+v", st)
	}
	if h.log.Count("stop_breached") != 1 {
		t.Fatal("expected a stop_breached log entry")
	}
}

func TestMACDTrailing_SignalExit(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetHolding("ADBE", 10)
	h.ind.neutral("ADBE")
	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100})) // stop 95

	// delta = (1.0-1.5)/100 = -0.005, macd > tolerance, close under trend
	// and under the stop: the signal exit wins and the stop is not re-based.
	h.ind.set("ADBE", 1.0, 1.5, 100, 120)
	h.ctrl.OnTick(tick(1, map[string]float64{"ADBE": 90}))

	got := h.exec.Instructions()
	if len(got) != 1 || got[0].Kind != types.Liquidate {
		t.Fatalf("expected a single liquidation, got %+v", got)
	}
	if st := h.ctrl.Stop("ADBE"); st.Highest != 100 || st.Stop != 95 {
		t.Fatalf("signal exit must leave the stop alone, got %+v", st)
	}
}

func TestMACDTrailing_BlockedSignalExitFallsThroughToStop(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetHolding("ADBE", 10)
	h.ind.neutral("ADBE")
	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	// Bearish delta but price above the trend average: no signal exit, so
	// the stop breach gets its turn.
	h.ind.set("ADBE", 1.0, 1.5, 100, 50)
	h.ctrl.OnTick(tick(1, map[string]float64{"ADBE": 90}))

	if n := len(h.exec.Instructions()); n != 1 {
		t.Fatalf("expected one liquidation, got %d", n)
	}
	if st := h.ctrl.Stop("ADBE"); st.Highest != 95 || st.Stop != 76 {
		t.Fatalf("expected breach re-base, got %+v", st)
	}
}

func TestMACDTrailing_EntryTakesPriorityOverBreach(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.ind.neutral("ADBE")
	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	h.ind.set("ADBE", 1.5, 0.9, 100, 0)
	h.ctrl.OnTick(tick(1, map[string]float64{"ADBE": 90}))

	got := h.exec.Instructions()
	if len(got) != 1 || got[0].Kind != types.SetHoldings {
		t.Fatalf("expected only the entry, got %+v", got)
	}
	if st := h.ctrl.Stop("ADBE"); st.Stop != 95 {
		t.Fatalf("breach must not run after an entry, got %+v", st)
	}
}

func TestMACDTrailing_TrailingStopMonotonic(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.ind.neutral("ADBE")

	prev := risk.StopState{}
	closes := []float64{100, 104, 103, 110, 108, 111}
	for i, c := range closes {
		h.ctrl.OnTick(tick(i, map[string]float64{"ADBE": c}))
		st := h.ctrl.Stop("ADBE")
		if st.Highest < prev.Highest {
			t.Fatalf("highest decreased from %v to %v", prev.Highest, st.Highest)
		}
		if st.Stop != st.Highest*0.95 {
			t.Fatalf("stop %v not derived from highest %v", st.Stop, st.Highest)
		}
		prev = st
	}
	if prev.Highest != 111 {
		t.Fatalf("expected highest 111, got %v", prev.Highest)
	}
}

func TestMACDTrailing_WarningNotification(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.ind.neutral("ADBE")
	h.ind.rsi = 22.5
	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	// 60 breaches 95 → stop re-based to 76; 60 < 0.9*76 → warning.
	h.ctrl.OnTick(tick(1, map[string]float64{"ADBE": 60}))

	sent := h.notes.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one warning, got %+v", sent)
	}
	if sent[0].Subject != WarningSubject || sent[0].Recipient != "investor@example.com" {
		t.Fatalf("unexpected notification %+v", sent[0])
	}
	if countKind(h.exec.Instructions(), types.Liquidate) != 1 {
		t.Fatal("the breach itself must still liquidate")
	}
}

func TestMACDTrailing_NotReadySkipsEverything(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if st := h.ctrl.Stop("ADBE"); st != (risk.StopState{}) {
		t.Fatalf("stop must not trail during warm-up, got %+v", st)
	}
	if len(h.exec.Instructions()) != 0 {
		t.Fatal("no instruction may be issued during warm-up")
	}
}

func TestMACDTrailing_ZeroFastValueSkipsSymbol(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe, config.Instrument{Symbol: "PG", Weight: 0.08}))
	h.ind.set("ADBE", 1.5, 0.9, 0, 0)
	h.ind.set("PG", 1.5, 0.9, 100, 0)

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100, "PG": 50}))

	got := h.exec.Instructions()
	if len(got) != 1 || got[0].Symbol != "PG" {
		t.Fatalf("expected only PG to trade, got %+v", got)
	}
	if h.log.Count("delta_undefined") != 1 {
		t.Fatal("expected delta_undefined warning for ADBE")
	}
	if st := h.ctrl.Stop("ADBE"); st != (risk.StopState{}) {
		t.Fatalf("skipped symbol must not trail, got %+v", st)
	}
}

func TestMACDTrailing_KillSwitch(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.ind.neutral("ADBE")
	h.exec.SetEquity(84_999)

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if !h.ctrl.Halted() || h.ctrl.State() != risk.Halted {
		t.Fatal("expected the account to be halted")
	}
	got := h.exec.Instructions()
	if len(got) != 1 || got[0].Kind != types.LiquidateAll {
		t.Fatalf("expected LiquidateAll, got %+v", got)
	}
	if subj := h.notes.Subjects(); len(subj) != 1 || subj[0] != CriticalSubject {
		t.Fatalf("expected the critical alert, got %v", subj)
	}

	// Favourable signals, a stop breach and recovered equity change nothing.
	h.exec.Reset()
	h.exec.SetEquity(200_000)
	h.ind.set("ADBE", 1.5, 0.9, 100, 0)
	for day := 1; day < 5; day++ {
		h.ctrl.OnTick(tick(day, map[string]float64{"ADBE": 10}))
	}
	if got := h.exec.Instructions(); len(got) != 0 {
		t.Fatalf("halted controller issued %+v", got)
	}
	if len(h.notes.Sent()) != 1 {
		t.Fatal("halted controller must not notify again")
	}
	if !h.ctrl.Halted() {
		t.Fatal("halted is terminal")
	}
}

func TestMACDTrailing_EquityAtFloorStaysActive(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetEquity(85_000)

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if h.ctrl.Halted() {
		t.Fatal("equity equal to the floor must not halt")
	}
}

func TestMACDTrailing_EquityErrorSkipsCheck(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.EquityErr = errors.New("broker timeout")

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if h.ctrl.Halted() {
		t.Fatal("unknown equity must not halt")
	}
	if h.log.Count("equity_unavailable") != 1 {
		t.Fatal("expected equity_unavailable log")
	}
}

func TestMACDTrailing_NonFiniteEquitySkipsCheck(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetEquity(math.NaN())

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if h.ctrl.Halted() || len(h.exec.Instructions()) != 0 || len(h.notes.Sent()) != 0 {
		t.Fatal("NaN equity must neither halt, liquidate nor alert")
	}
	if h.log.Count("equity_unavailable") != 1 {
		t.Fatal("expected equity_unavailable log")
	}
}

func TestMACDTrailing_InvalidCloseSkipsSymbol(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetHolding("ADBE", 10)
	h.ind.neutral("ADBE")
	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	h.ind.set("ADBE", 1.5, 0.9, 100, 0)
	h.ctrl.OnTick(tick(1, map[string]float64{"ADBE": math.NaN()}))

	if got := h.exec.Instructions(); len(got) != 0 {
		t.Fatalf("invalid close produced %+v", got)
	}
	if st := h.ctrl.Stop("ADBE"); st.Highest != 100 || st.Stop != 95 {
		t.Fatalf("stop must be untouched, got %+v", st)
	}
	if h.log.Count("bar_invalid") != 1 {
		t.Fatal("expected bar_invalid warning")
	}
}

func TestMACDTrailing_VenueFailureIsLoggedNotFatal(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe, config.Instrument{Symbol: "PG", Weight: 0.08}))
	h.exec.Fail = errors.New("rejected")
	h.ind.set("ADBE", 1.5, 0.9, 100, 0)
	h.ind.set("PG", 1.5, 0.9, 100, 0)

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100, "PG": 50}))

	if n := len(h.exec.Instructions()); n != 2 {
		t.Fatalf("a failed directive must not stop the loop, got %d instructions", n)
	}
	if h.log.Count("order_failed") != 2 {
		t.Fatal("expected both failures to be logged")
	}
}

func TestMACDTrailing_NotifierFailureIsLogged(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.notes.Fail = errors.New("smtp down")
	h.exec.SetEquity(1)

	h.ctrl.OnTick(tick(0, map[string]float64{"ADBE": 100}))

	if h.log.Count("notify_failed") != 1 {
		t.Fatal("expected notify_failed log")
	}
}

func TestMACDTrailing_RestoreOnlyMovesForward(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.ctrl.Restore(store.Snapshot{Stops: map[string]risk.StopState{"ADBE": {Highest: 100, Stop: 95}}})
	if h.ctrl.Halted() {
		t.Fatal("active snapshot must not halt")
	}
	if st := h.ctrl.Stop("ADBE"); st.Stop != 95 {
		t.Fatalf("expected restored stop, got %+v", st)
	}

	h.ctrl.Restore(store.Snapshot{Halted: true})
	h.ctrl.Restore(store.Snapshot{Halted: false})
	if !h.ctrl.Halted() {
		t.Fatal("restore must never un-halt")
	}
	snap := h.ctrl.Snapshot()
	if !snap.Halted || snap.Stops["ADBE"].Highest != 100 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSignalDelta(t *testing.T) {
	if d, ok := SignalDelta(indicator.MACDValue{Value: 1.5, Signal: 0.9, Fast: 100}); !ok || d <= 0.0059 || d >= 0.0061 {
		t.Fatalf("expected ~0.006, got %v (%v)", d, ok)
	}
	if _, ok := SignalDelta(indicator.MACDValue{Value: 1, Fast: 0}); ok {
		t.Fatal("zero fast value must be undefined")
	}
}

func TestMACDTrailing_ReadinessGatingWithRealIndicators(t *testing.T) {
	cfg := buildConfig(adbe)
	set, err := indicator.NewSet(cfg.Symbols(), indicator.DefaultParams(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewSet failed: %v", err)
	}
	exec := testutils.NewMockExecutor(cfg.InitialCash)
	ctrl, err := NewMACDTrailing(cfg, exec, set, testutils.NewMockNotifier(), testutils.NewMockLogger())
	if err != nil {
		t.Fatalf("NewMACDTrailing failed: %v", err)
	}

	// 199 bars of a steep rally: every signal says buy, none may fire.
	price := 100.0
	for day := 0; day < 199; day++ {
		price *= 1.02
		tk := tick(day, map[string]float64{"ADBE": price})
		set.Update(tk)
		ctrl.OnTick(tk)
	}
	if got := exec.Instructions(); len(got) != 0 {
		t.Fatalf("expected no instruction before readiness, got %d", len(got))
	}
}

func TestMACDTrailing_EntryAfterWarmUpWithRealIndicators(t *testing.T) {
	cfg := buildConfig(adbe)
	set, _ := indicator.NewSet(cfg.Symbols(), indicator.DefaultParams(), logger.NewNop())
	exec := testutils.NewMockExecutor(cfg.InitialCash)
	ctrl, _ := NewMACDTrailing(cfg, exec, set, testutils.NewMockNotifier(), testutils.NewMockLogger())

	feed := func(day int, px float64) {
		tk := tick(day, map[string]float64{"ADBE": px})
		set.Update(tk)
		ctrl.OnTick(tk)
	}
	for day := 0; day < 200; day++ {
		feed(day, 100)
	}
	if len(exec.Instructions()) != 0 {
		t.Fatal("flat market must not trigger an entry")
	}
	price := 100.0
	for day := 200; day < 205; day++ {
		price *= 1.02
		feed(day, price)
	}
	got := exec.Instructions()
	if len(got) == 0 || got[0].Kind != types.SetHoldings || got[0].Weight != 0.12 {
		t.Fatalf("expected an ADBE entry once the rally starts, got %+v", got)
	}
}

func TestMACDTrailing_WarmUpEvolvesStopsSilently(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.exec.SetHolding("ADBE", 10)
	h.exec.SetEquity(1) // far below the floor: WarmUp must not look
	h.ind.neutral("ADBE")

	h.ctrl.WarmUp(tick(0, map[string]float64{"ADBE": 100}))
	h.ctrl.WarmUp(tick(1, map[string]float64{"ADBE": 60})) // breach and warning level

	if got := h.exec.Instructions(); len(got) != 0 {
		t.Fatalf("warm-up issued %+v", got)
	}
	if len(h.notes.Sent()) != 0 {
		t.Fatal("warm-up must not notify")
	}
	if st := h.ctrl.Stop("ADBE"); st.Highest != 95 || st.Stop != 76 {
		t.Fatalf("expected the breach re-base {95 76}, got %+v", st)
	}
	if h.ctrl.Halted() {
		t.Fatal("warm-up must not run the drawdown check")
	}
}

func TestMACDTrailing_WarmUpSuppressesEntries(t *testing.T) {
	h := buildHarness(t, buildConfig(adbe))
	h.ind.set("ADBE", 1.5, 0.9, 100, 0)

	h.ctrl.WarmUp(tick(0, map[string]float64{"ADBE": 100}))

	if got := h.exec.Instructions(); len(got) != 0 {
		t.Fatalf("warm-up issued %+v", got)
	}
	if h.log.Count("order_suppressed") != 1 {
		t.Fatal("expected the entry to be logged as suppressed")
	}
}
