package strategy

import (
	"github.com/evdnx/gotrend/executor"
	"github.com/evdnx/gotrend/logger"
	"github.com/evdnx/gotrend/metrics"
	"github.com/evdnx/gotrend/notify"
	"github.com/evdnx/gotrend/types"
)

// BaseStrategy bundles the collaborators every strategy talks to and the
// fire-and-forget wrappers around them.
type BaseStrategy struct {
	Exec      executor.Executor
	Log       logger.Logger
	Notifier  notify.Notifier
	Recipient string
}

func NewBaseStrategy(exec executor.Executor, n notify.Notifier, recipient string, log logger.Logger) *BaseStrategy {
	return &BaseStrategy{Exec: exec, Log: log, Notifier: n, Recipient: recipient}
}

// direct sends one instruction, records metrics and logs the outcome. Venue
// errors are logged and swallowed; the caller never waits on a retry.
func (b *BaseStrategy) direct(in types.Instruction, reason string, send func() error) {
	metrics.InstructionsIssued.WithLabelValues(reason).Inc()
	if err := send(); err != nil {
		metrics.InstructionFailures.WithLabelValues(reason).Inc()
		b.Log.Error("order_failed",
			logger.String("kind", string(in.Kind)),
			logger.String("symbol", in.Symbol),
			logger.Float64("weight", in.Weight),
			logger.String("reason", reason),
			logger.Err(err),
		)
		return
	}
	b.Log.Info("order_submitted",
		logger.String("kind", string(in.Kind)),
		logger.String("symbol", in.Symbol),
		logger.Float64("weight", in.Weight),
		logger.String("reason", reason),
	)
}

func (b *BaseStrategy) setHoldings(symbol string, weight float64, reason string) {
	in := types.Instruction{Kind: types.SetHoldings, Symbol: symbol, Weight: weight}
	b.direct(in, reason, func() error { return b.Exec.SetHoldings(symbol, weight) })
}

func (b *BaseStrategy) liquidate(symbol, reason string) {
	in := types.Instruction{Kind: types.Liquidate, Symbol: symbol}
	b.direct(in, reason, func() error { return b.Exec.Liquidate(symbol) })
}

func (b *BaseStrategy) liquidateAll(reason string) {
	b.direct(types.Instruction{Kind: types.LiquidateAll}, reason, b.Exec.LiquidateAll)
}

// notify delivers an alert; severity only labels logs and metrics.
func (b *BaseStrategy) notify(severity, subject, body string) {
	metrics.NotificationsSent.WithLabelValues(severity).Inc()
	if b.Notifier == nil {
		return
	}
	if err := b.Notifier.Notify(b.Recipient, subject, body); err != nil {
		b.Log.Error("notify_failed",
			logger.String("severity", severity),
			logger.String("subject", subject),
			logger.Err(err),
		)
	}
}
