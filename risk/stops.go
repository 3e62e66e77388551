package risk

// StopState is the trailing stop of one symbol. Both fields start at zero.
type StopState struct {
	Highest float64 `json:"highest"`
	Stop    float64 `json:"stop"`
}

// StopBook owns the stop state of every symbol in the universe.
type StopBook struct {
	trailing float64
	postStop float64
	states   map[string]StopState
}

// NewStopBook creates zeroed states. trailing is the factor applied to a new
// high (0.95); postStop is the wider band formed after a breach (0.80).
func NewStopBook(trailing, postStop float64, symbols []string) *StopBook {
	b := &StopBook{
		trailing: trailing,
		postStop: postStop,
		states:   make(map[string]StopState, len(symbols)),
	}
	for _, s := range symbols {
		b.states[s] = StopState{}
	}
	return b
}

func (b *StopBook) Get(symbol string) StopState { return b.states[symbol] }

// Breached reports close < stop.
func (b *StopBook) Breached(symbol string, close float64) bool {
	return close < b.states[symbol].Stop
}

// Reset re-bases the stop after a breach: the old stop becomes the
// reference high and the new stop sits postStop below it.
//
// NOTE: re-basing on the old stop rather than the breach price is
// deliberate; the resulting levels are part of the observable behaviour.
func (b *StopBook) Reset(symbol string) StopState {
	st := b.states[symbol]
	st.Highest = st.Stop
	st.Stop = st.Highest * b.postStop
	b.states[symbol] = st
	return st
}

// Trail raises the reference high when close exceeds it and reports
// whether it did.
func (b *StopBook) Trail(symbol string, close float64) bool {
	st := b.states[symbol]
	if close <= st.Highest {
		return false
	}
	st.Highest = close
	st.Stop = st.Highest * b.trailing
	b.states[symbol] = st
	return true
}

// Snapshot copies every state.
func (b *StopBook) Snapshot() map[string]StopState {
	out := make(map[string]StopState, len(b.states))
	for k, v := range b.states {
		out[k] = v
	}
	return out
}

// Restore overwrites the states of known symbols.
func (b *StopBook) Restore(states map[string]StopState) {
	for k, v := range states {
		if _, ok := b.states[k]; ok {
			b.states[k] = v
		}
	}
}
