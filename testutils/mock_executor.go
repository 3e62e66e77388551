package testutils

import (
	"sync"

	"github.com/evdnx/gotrend/types"
)

// MockExecutor implements the Executor interface in‑memory. Holdings and
// equity are set by the test; instructions are recorded, not filled.
type MockExecutor struct {
	mu           sync.RWMutex
	equity       float64
	positions    map[string]float64 // qty (signed)
	instructions []types.Instruction

	// Fail, when set, is returned by every directive after recording it.
	Fail error
	// EquityErr, when set, is returned by Equity.
	EquityErr error
}

// NewMockExecutor creates a fresh executor with the supplied equity.
func NewMockExecutor(equity float64) *MockExecutor {
	return &MockExecutor{
		equity:    equity,
		positions: make(map[string]float64),
	}
}

func (m *MockExecutor) record(in types.Instruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = append(m.instructions, in)
	return m.Fail
}

func (m *MockExecutor) SetHoldings(symbol string, weight float64) error {
	return m.record(types.Instruction{Kind: types.SetHoldings, Symbol: symbol, Weight: weight})
}

func (m *MockExecutor) Liquidate(symbol string) error {
	return m.record(types.Instruction{Kind: types.Liquidate, Symbol: symbol})
}

func (m *MockExecutor) LiquidateAll() error {
	return m.record(types.Instruction{Kind: types.LiquidateAll})
}

func (m *MockExecutor) Holding(symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[symbol], nil
}

func (m *MockExecutor) Equity() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.EquityErr != nil {
		return 0, m.EquityErr
	}
	return m.equity, nil
}

// SetHolding overrides the position of a symbol.
func (m *MockExecutor) SetHolding(symbol string, qty float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = qty
}

// SetEquity overrides the total portfolio value.
func (m *MockExecutor) SetEquity(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = v
}

// Instructions returns a copy of all recorded directives (useful for assertions).
func (m *MockExecutor) Instructions() []types.Instruction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Instruction, len(m.instructions))
	copy(out, m.instructions)
	return out
}

// Reset forgets recorded directives.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = nil
}
