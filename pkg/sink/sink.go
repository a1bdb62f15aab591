// Package sink holds the destinations that receive state updates.
package sink

import (
	"github.com/sirupsen/logrus"
)

// Sink receives named state values. Updates are fire-and-forget; an
// implementation must keep the order of calls from a single caller.
type Sink interface {
	UpdateState(id, value string)
}

// Func adapts a function to a Sink.
type Func func(id, value string)

func (f Func) UpdateState(id, value string) {
	f(id, value)
}

// Multi forwards every update to all sinks in order.
type Multi []Sink

func (m Multi) UpdateState(id, value string) {
	for _, s := range m {
		s.UpdateState(id, value)
	}
}

// Log writes every update to logrus. Long values are truncated.
type Log struct {
	Logger logrus.FieldLogger
	Limit  int
}

func (l Log) UpdateState(id, value string) {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	v := value
	if l.Limit > 0 && len(v) > l.Limit {
		v = v[:l.Limit] + "..."
	}
	logger.WithFields(logrus.Fields{
		"state": id,
		"value": v,
		"len":   len(value),
	}).Info("state updated")
}
