package risk

import "math"

// AccountState is the trading state of the whole account.
type AccountState int

const (
	Active AccountState = iota
	Halted
)

func (s AccountState) String() string {
	if s == Halted {
		return "HALTED"
	}
	return "ACTIVE"
}

// KillSwitch halts trading for the rest of the run once total portfolio
// value drops below floorFactor*initialCash. Halted is terminal.
type KillSwitch struct {
	floor float64
	state AccountState
}

func NewKillSwitch(initialCash, floorFactor float64) *KillSwitch {
	return &KillSwitch{floor: initialCash * floorFactor}
}

func (k *KillSwitch) State() AccountState { return k.state }
func (k *KillSwitch) Halted() bool        { return k.state == Halted }
func (k *KillSwitch) Floor() float64      { return k.floor }

// Check trips the switch when equity is below the floor. It returns true
// only on the call that performs the transition. A non-finite equity is not
// a reading and never trips.
func (k *KillSwitch) Check(equity float64) bool {
	if k.state == Halted || math.IsNaN(equity) || math.IsInf(equity, 0) || equity >= k.floor {
		return false
	}
	return k.Trip()
}

// Trip moves the account to Halted. Returns false if it already was.
func (k *KillSwitch) Trip() bool {
	if k.state == Halted {
		return false
	}
	k.state = Halted
	return true
}
