// Package bridge owns the transport endpoints of a tpbridge instance and
// moves frames between them and the router.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/extra-connectors/tpbridge/pkg/router"
	"github.com/extra-connectors/tpbridge/pkg/transport"
)

var (
	// ErrMalformedFrame is reported for inbound messages that are not
	// exactly (topic, payload).
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrNoOutbound is returned by Forward when no downstream peer is
	// connected.
	ErrNoOutbound = errors.New("no outbound endpoint")
)

// Policy decides what a handler failure does to the receive loop.
type Policy string

const (
	// PolicyNack replies ERR and keeps receiving.
	PolicyNack Policy = "nack"
	// PolicyFatal replies ERR and stops the bridge with the error.
	PolicyFatal Policy = "fatal"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyNack || p == PolicyFatal
}

// State of the bridge endpoints.
type State int32

const (
	StateUnbound State = iota
	StateBound
	StateReceiving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateReceiving:
		return "receiving"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Dispatcher routes a frame to its handler. It is satisfied by
// *router.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic, payload string) (router.Result, error)
	Topics() []string
}

// Frame describes one handled inbound frame.
type Frame struct {
	Topic string
	// Reply is the token sent back, empty under PatternPubSub.
	Reply string
	Err   error
	// SendErr is set when the reply could not be delivered.
	SendErr  error
	Duration time.Duration
}

// Options configure a Bridge.
type Options struct {
	Pattern    transport.Pattern
	Policy     Policy
	Opener     transport.Opener
	Dispatcher Dispatcher
	// OnFrame is called after every inbound frame, from the receive loop.
	OnFrame func(Frame)
}

// Bridge receives frames on an inbound endpoint, dispatches them and
// answers according to the pattern. Under PatternReqRep it also owns an
// outbound endpoint used by Forward.
type Bridge struct {
	opts Options

	state atomic.Int32

	mu  sync.Mutex
	in  transport.Endpoint
	out transport.Endpoint

	// one outstanding outbound request at a time
	pending chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates an unbound Bridge.
func New(opts Options) (*Bridge, error) {
	if opts.Pattern == "" {
		opts.Pattern = transport.PatternReqRep
	}
	if opts.Policy == "" {
		opts.Policy = PolicyNack
	}
	if !opts.Pattern.Valid() {
		return nil, pkgerrors.Errorf("unsupported pattern %q", opts.Pattern)
	}
	if !opts.Policy.Valid() {
		return nil, pkgerrors.Errorf("unsupported handler error policy %q", opts.Policy)
	}
	if opts.Opener == nil || opts.Dispatcher == nil {
		return nil, pkgerrors.New("opener and dispatcher are required")
	}

	return &Bridge{
		opts:    opts,
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// State returns the current state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Pattern returns the configured pattern.
func (b *Bridge) Pattern() transport.Pattern {
	return b.opts.Pattern
}

// Bind opens the endpoints. A failure to open the outbound endpoint is
// logged and leaves Forward unavailable; it does not fail Bind. Openers
// that dial in the background return before the peer is reached.
func (b *Bridge) Bind(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.State(); s != StateUnbound {
		return pkgerrors.Errorf("cannot bind a %s bridge", s)
	}

	var topics []string
	if b.opts.Pattern == transport.PatternPubSub {
		topics = b.opts.Dispatcher.Topics()
	}
	in, err := b.opts.Opener.Inbound(ctx, b.opts.Pattern, topics)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open inbound endpoint")
	}
	b.in = in

	if b.opts.Pattern == transport.PatternReqRep {
		out, err := b.opts.Opener.Outbound(ctx)
		if err != nil {
			logrus.WithError(err).Warn("outbound endpoint unavailable, actions will not be forwarded")
		} else {
			b.out = out
		}
	}

	b.state.Store(int32(StateBound))
	return nil
}

// Run receives frames until the bridge is closed, ctx is done, or a
// handler fails under PolicyFatal. It closes the bridge before returning.
// A clean stop returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if s := b.State(); s != StateBound {
		b.mu.Unlock()
		return pkgerrors.Errorf("cannot run a %s bridge", s)
	}
	b.state.Store(int32(StateReceiving))
	in, out := b.in, b.out
	b.mu.Unlock()

	defer b.wg.Wait()
	defer b.Close()

	// Blocking receives only return once their endpoint is closed.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case <-ctx.Done():
			b.Close()
		case <-b.done:
		}
	}()

	if out != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.replyLoop(ctx, out)
		}()
	}

	logrus.WithField("pattern", b.opts.Pattern).Info("bridge receiving")

	for {
		parts, err := in.Recv(ctx)
		if err != nil {
			if b.stopping(ctx, err) {
				return nil
			}
			return pkgerrors.Wrapf(err, "failed to receive frame")
		}

		f := b.handle(ctx, parts)

		if b.opts.Pattern == transport.PatternReqRep {
			if serr := in.Send(ctx, []byte(f.Reply)); serr != nil {
				if b.stopping(ctx, serr) {
					return nil
				}
				// A peer that cannot take its reply does not stop the loop.
				f.SendErr = serr
				logrus.WithError(serr).WithFields(logrus.Fields{
					"topic": f.Topic,
					"reply": f.Reply,
				}).Error("failed to send reply")
			}
		}
		if b.opts.OnFrame != nil {
			b.opts.OnFrame(f)
		}

		var herr *router.HandlerError
		if f.Err != nil && b.opts.Policy == PolicyFatal && errors.As(f.Err, &herr) {
			return f.Err
		}
	}
}

func (b *Bridge) stopping(ctx context.Context, err error) bool {
	select {
	case <-b.done:
		return true
	default:
	}
	return ctx.Err() != nil || errors.Is(err, transport.ErrClosed)
}

// handle dispatches one frame and describes the outcome. Reply holds the
// token to send back under PatternReqRep. It never panics.
func (b *Bridge) handle(ctx context.Context, parts [][]byte) (f Frame) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			f.Err = &router.HandlerError{Topic: f.Topic, Err: fmt.Errorf("panic: %v", r)}
		}
		f.Reply = ReplyFor(f.Err)
		f.Duration = time.Since(start)

		fields := logrus.Fields{
			"topic":    f.Topic,
			"reply":    f.Reply,
			"duration": f.Duration,
		}
		switch {
		case f.Err == nil:
			logrus.WithFields(fields).Debug("frame handled")
		case errors.Is(f.Err, router.ErrUnknownTopic):
			logrus.WithFields(fields).Warn("dropped frame for unknown topic")
		default:
			logrus.WithFields(fields).WithError(f.Err).Error("failed to handle frame")
		}

		if b.opts.Pattern != transport.PatternReqRep {
			f.Reply = ""
		}
	}()

	if len(parts) != 2 {
		f.Err = pkgerrors.Wrapf(ErrMalformedFrame, "got %d parts", len(parts))
		return f
	}
	f.Topic = string(parts[0])

	_, f.Err = b.opts.Dispatcher.Dispatch(ctx, f.Topic, string(parts[1]))
	return f
}

// ReplyFor maps the outcome of a dispatch to its reply token.
func ReplyFor(err error) string {
	switch {
	case err == nil:
		return transport.ReplyAck
	case errors.Is(err, router.ErrUnknownTopic):
		return transport.ReplyNack
	default:
		return transport.ReplyError
	}
}

func (b *Bridge) replyLoop(ctx context.Context, out transport.Endpoint) {
	for {
		parts, err := out.Recv(ctx)
		if err != nil {
			if !b.stopping(ctx, err) {
				logrus.WithError(err).Error("outbound reply loop stopped")
			}
			return
		}

		entry := logrus.WithField("parts", len(parts))
		if len(parts) > 0 {
			entry = entry.WithField("reply", string(parts[0]))
		}
		entry.Info("downstream replied")

		select {
		case <-b.pending:
		default:
		}
	}
}

// Forward sends (topic, payload) to the downstream peer. Requests are
// serialized: Forward blocks while a previous request awaits its reply.
func (b *Bridge) Forward(ctx context.Context, topic, payload string) error {
	b.mu.Lock()
	out := b.out
	b.mu.Unlock()

	if b.State() == StateClosed {
		return transport.ErrClosed
	}
	if out == nil {
		return ErrNoOutbound
	}

	select {
	case b.pending <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return transport.ErrClosed
	}

	if err := out.Send(ctx, []byte(topic), []byte(payload)); err != nil {
		<-b.pending
		return pkgerrors.Wrapf(err, "failed to forward %s", topic)
	}

	logrus.WithFields(logrus.Fields{
		"topic":   topic,
		"payload": payload,
	}).Info("forwarded request")

	return nil
}

// Close closes every endpoint. Receive loops return on their next
// suspension point; in-flight handlers finish.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		defer b.mu.Unlock()
		b.state.Store(int32(StateClosed))

		if b.in != nil {
			err = b.in.Close()
		}
		if b.out != nil {
			if cerr := b.out.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		logrus.Info("bridge closed")
	})
	return err
}
