// Package feed delivers daily ticks (one bar per instrument per session) to
// the engine.
package feed

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/evdnx/gotrend/types"
)

// ErrUnknownSymbol is returned for bars of instruments outside the universe.
var ErrUnknownSymbol = errors.New("symbol not in universe")

// Feed yields ticks in chronological order and io.EOF when exhausted.
type Feed interface {
	Next(ctx context.Context) (types.Tick, error)
}

const dayLayout = "2006-01-02"

// group folds bars into one tick per session date, oldest first.
func group(bars []types.Bar) []types.Tick {
	byDay := make(map[string]*types.Tick)
	for _, b := range bars {
		key := b.Time.UTC().Format(dayLayout)
		tk, ok := byDay[key]
		if !ok {
			day, _ := time.Parse(dayLayout, key)
			tk = &types.Tick{Time: day, Bars: make(map[string]types.Bar)}
			byDay[key] = tk
		}
		tk.Bars[b.Symbol] = b
	}
	out := make([]types.Tick, 0, len(byDay))
	for _, tk := range byDay {
		out = append(out, *tk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func universe(symbols []string) map[string]bool {
	m := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		m[s] = true
	}
	return m
}
