package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ZMQ opens ZeroMQ sockets. The inbound socket is bound (REP or SUB), the
// outbound one connects (REQ).
type ZMQ struct {
	InboundAddr  string
	OutboundAddr string
	// DialRetry is the delay between attempts to reach the outbound peer.
	DialRetry time.Duration
}

var _ Opener = ZMQ{}

func (z ZMQ) Inbound(ctx context.Context, p Pattern, topics []string) (Endpoint, error) {
	var sck zmq4.Socket
	switch p {
	case PatternReqRep:
		sck = zmq4.NewRep(ctx)
	case PatternPubSub:
		sck = zmq4.NewSub(ctx)
	default:
		return nil, pkgerrors.Errorf("unsupported pattern %q", p)
	}

	if err := sck.Listen(z.InboundAddr); err != nil {
		_ = sck.Close()
		return nil, pkgerrors.Wrapf(err, "failed to bind %s", z.InboundAddr)
	}

	if p == PatternPubSub {
		for _, topic := range topics {
			if err := sck.SetOption(zmq4.OptionSubscribe, topic); err != nil {
				_ = sck.Close()
				return nil, pkgerrors.Wrapf(err, "failed to subscribe to %s", topic)
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"addr":    z.InboundAddr,
		"pattern": p,
		"topics":  topics,
	}).Info("inbound socket bound")

	return &zmqEndpoint{sck: sck}, nil
}

// Outbound returns at once. The peer is dialed in the background and Send
// reports ErrNotConnected until it is reached.
func (z ZMQ) Outbound(ctx context.Context) (Endpoint, error) {
	retry := z.DialRetry
	if retry <= 0 {
		retry = time.Second
	}
	return dialInBackground(ctx, z.OutboundAddr, retry, func(ctx context.Context) (Endpoint, error) {
		sck := zmq4.NewReq(ctx,
			zmq4.WithDialerRetry(retry),
			zmq4.WithDialerMaxRetries(0),
			zmq4.WithAutomaticReconnect(true),
		)
		if err := sck.Dial(z.OutboundAddr); err != nil {
			_ = sck.Close()
			return nil, pkgerrors.Wrapf(err, "failed to connect to %s", z.OutboundAddr)
		}
		return &zmqEndpoint{sck: sck}, nil
	}), nil
}

type zmqEndpoint struct {
	sck    zmq4.Socket
	once   sync.Once
	closed atomic.Bool
	err    error
}

func (e *zmqEndpoint) Recv(ctx context.Context) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.closed.Load() {
		return nil, ErrClosed
	}
	msg, err := e.sck.Recv()
	if err != nil {
		if e.closed.Load() {
			return nil, ErrClosed
		}
		return nil, err
	}
	return msg.Frames, nil
}

func (e *zmqEndpoint) Send(ctx context.Context, parts ...[]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.closed.Load() {
		return ErrClosed
	}
	if len(parts) == 1 {
		return e.sck.Send(zmq4.NewMsg(parts[0]))
	}
	return e.sck.SendMulti(zmq4.NewMsgFrom(parts...))
}

func (e *zmqEndpoint) Close() error {
	e.once.Do(func() {
		e.closed.Store(true)
		e.err = e.sck.Close()
	})
	return e.err
}
