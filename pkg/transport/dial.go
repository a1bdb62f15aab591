package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by Send on an outbound endpoint whose peer
// has not been reached yet.
var ErrNotConnected = errors.New("peer not connected")

// dialingEndpoint reaches its peer in the background, so opening it never
// waits for the peer to come up.
type dialingEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	mu   sync.Mutex
	ep   Endpoint
	once sync.Once
	err  error
}

// dialInBackground calls dial until it succeeds, waiting retry between
// attempts, or until ctx is done or the endpoint is closed.
func dialInBackground(ctx context.Context, addr string, retry time.Duration, dial func(context.Context) (Endpoint, error)) *dialingEndpoint {
	ctx, cancel := context.WithCancel(ctx)
	e := &dialingEndpoint{
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
	}

	go func() {
		log := logrus.WithField("addr", addr)
		for attempt := 1; ; attempt++ {
			ep, err := dial(ctx)
			if err == nil {
				e.mu.Lock()
				if ctx.Err() != nil {
					e.mu.Unlock()
					_ = ep.Close()
					return
				}
				e.ep = ep
				close(e.ready)
				e.mu.Unlock()
				log.WithField("attempts", attempt).Info("outbound peer connected")
				return
			}

			if attempt == 1 {
				log.WithError(err).Warn("outbound peer unreachable, retrying in the background")
			} else {
				log.WithError(err).Debug("outbound peer still unreachable")
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
		}
	}()

	return e
}

func (e *dialingEndpoint) endpoint() Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ep
}

// Recv waits for the peer to be reached before receiving.
func (e *dialingEndpoint) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case <-e.ready:
	case <-e.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.endpoint().Recv(ctx)
}

func (e *dialingEndpoint) Send(ctx context.Context, parts ...[]byte) error {
	if e.ctx.Err() != nil {
		return ErrClosed
	}
	ep := e.endpoint()
	if ep == nil {
		return ErrNotConnected
	}
	return ep.Send(ctx, parts...)
}

func (e *dialingEndpoint) Close() error {
	e.once.Do(func() {
		e.cancel()
		if ep := e.endpoint(); ep != nil {
			e.err = ep.Close()
		}
	})
	return e.err
}
