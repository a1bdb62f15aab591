package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/extra-connectors/tpbridge/pkg/sink"
)

// Topics and the states they update.
const (
	TopicKeyboardLock   = "ChangeKeyboardLockState"
	TopicBatteryMonitor = "BatteryMonitorUpdate"

	StateKeyboardLock = "extra-connectors.keyboard-lock-state.state"
	StateBatteryImage = "extra-connectors.battery-monitor.state-image"
)

// ErrUnknownTopic is returned by Dispatch for topics without a handler.
var ErrUnknownTopic = errors.New("unknown topic")

// HandlerError wraps a failure of a topic's transform.
type HandlerError struct {
	Topic string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for topic %s failed: %v", e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// TransformFunc turns a raw payload into the state value.
type TransformFunc func(ctx context.Context, payload string) (string, error)

// Handler describes what happens to frames of one topic.
type Handler struct {
	StateID   string
	Transform TransformFunc
}

// Table maps topics to their handlers.
type Table map[string]Handler

// Result is the state update produced by a dispatched frame.
type Result struct {
	StateID string
	Value   string
}

// Router dispatches frames to the handler registered for their topic and
// pushes the result to a sink. Dispatches run one at a time, so the last
// value pushed for a state is the one computed last.
type Router struct {
	table Table
	sink  sink.Sink
	lock  sync.Locker
}

// Option configures a Router.
type Option func(*Router)

// WithLock makes the Router serialize dispatches on l. Routers that share
// state through their transforms must share l.
func WithLock(l sync.Locker) Option {
	return func(r *Router) {
		r.lock = l
	}
}

// New creates a Router. The table must not be modified afterwards.
func New(s sink.Sink, table Table, opts ...Option) *Router {
	r := &Router{
		table: table,
		sink:  s,
		lock:  &sync.Mutex{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Topics returns every registered topic, sorted.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.table))
	for t := range r.table {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch runs the handler of topic on payload and forwards the result to
// the sink. Unknown topics return ErrUnknownTopic and touch nothing;
// transform failures return a *HandlerError and nothing is forwarded.
func (r *Router) Dispatch(ctx context.Context, topic, payload string) (Result, error) {
	h, ok := r.table[topic]
	if !ok {
		return Result{}, pkgerrors.Wrapf(ErrUnknownTopic, "topic %q", topic)
	}

	// Transform and sink push form one step.
	r.lock.Lock()
	defer r.lock.Unlock()

	value := payload
	if h.Transform != nil {
		v, err := h.Transform(ctx, payload)
		if err != nil {
			return Result{}, &HandlerError{Topic: topic, Err: err}
		}
		value = v
	}

	logrus.WithFields(logrus.Fields{
		"topic": topic,
		"state": h.StateID,
	}).Debug("frame dispatched")

	if r.sink != nil {
		r.sink.UpdateState(h.StateID, value)
	}
	return Result{StateID: h.StateID, Value: value}, nil
}
