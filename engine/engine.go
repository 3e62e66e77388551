// Package engine drives the tick loop: feed, indicators, marks, controller
// and snapshot, strictly one tick at a time.
package engine

import (
	"context"
	"errors"
	"io"

	"github.com/evdnx/gotrend/executor"
	"github.com/evdnx/gotrend/feed"
	"github.com/evdnx/gotrend/indicator"
	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/metrics"
	"github.com/evdnx/gotrend/store"
	"github.com/evdnx/gotrend/strategy"
	"github.com/evdnx/gotrend/types"
)

type Engine struct {
	feed   feed.Feed
	set    *indicator.Set
	ctrl   *strategy.MACDTrailing
	exec   executor.Executor
	store  store.Store
	log    logger.Logger
	warmUp int
	ticks  int
	// pending holds a resumed snapshot until the first live tick, so that
	// replayed history cannot overwrite the persisted stops.
	pending *store.Snapshot
}

// New wires an engine. st may be nil when nothing should be persisted.
func New(f feed.Feed, set *indicator.Set, ctrl *strategy.MACDTrailing, exec executor.Executor,
	st store.Store, warmUp int, log logger.Logger) *Engine {
	return &Engine{feed: f, set: set, ctrl: ctrl, exec: exec, store: st, log: log, warmUp: warmUp}
}

// Resume loads the last saved snapshot, if any. A halted snapshot halts the
// controller at once; stops are applied when warm-up ends.
func (e *Engine) Resume(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	snap, ok, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		e.log.Info("no_snapshot")
		return nil
	}
	if snap.Halted {
		e.ctrl.Restore(snap)
	}
	e.pending = &snap
	e.log.Info("snapshot_loaded",
		logger.Bool("halted", snap.Halted),
		logger.Int("ticks", snap.Ticks),
	)
	return nil
}

// Run consumes the feed until it is exhausted (nil) or ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	for {
		tick, err := e.feed.Next(ctx)
		if errors.Is(err, io.EOF) {
			e.log.Info("feed_exhausted", logger.Int("ticks", e.ticks))
			return nil
		}
		if err != nil {
			return err
		}
		e.Step(ctx, tick)
	}
}

// Step processes one tick. History ticks and the first warmUp ticks only
// warm the controller up.
func (e *Engine) Step(ctx context.Context, tick types.Tick) {
	e.set.Update(tick)
	if m, ok := e.exec.(executor.Marker); ok {
		for sym, bar := range tick.Bars {
			m.Mark(sym, bar.Close)
		}
	}
	e.ticks++
	metrics.TicksProcessed.Inc()
	if tick.History || e.ticks <= e.warmUp {
		e.ctrl.WarmUp(tick)
		return
	}

	if e.pending != nil {
		e.ctrl.Restore(*e.pending)
		e.pending = nil
		e.log.Info("snapshot_restored")
	}
	e.ctrl.OnTick(tick)

	if e.store == nil {
		return
	}
	snap := e.ctrl.Snapshot()
	snap.Ticks = e.ticks
	if err := e.store.Save(ctx, snap); err != nil {
		e.log.Error("snapshot_save_failed", logger.Err(err))
	}
}

// Ticks is the number of ticks seen so far.
func (e *Engine) Ticks() int { return e.ticks }
