// Package notify delivers operator alerts. Delivery is best effort: callers
// log a returned error and carry on.
package notify

import (
	"github.com/evdnx/gotrend/logger"
	"go.uber.org/multierr"
)

// Notifier sends one message to a recipient.
type Notifier interface {
	Notify(recipient, subject, body string) error
}

// Log writes notifications to the structured log.
type Log struct {
	log logger.Logger
}

func NewLog(log logger.Logger) *Log { return &Log{log: log} }

func (l *Log) Notify(recipient, subject, body string) error {
	l.log.Warn("notification",
		logger.String("recipient", recipient),
		logger.String("subject", subject),
		logger.String("body", body),
	)
	return nil
}

// Multi fans a notification out to every channel and combines failures.
type Multi []Notifier

func (m Multi) Notify(recipient, subject, body string) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.Notify(recipient, subject, body))
	}
	return err
}
