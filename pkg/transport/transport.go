// Package transport adapts message sockets to the two-part frames the
// bridge consumes.
//
// Reply tokens sent back to request-reply peers form a closed set:
//
//	ACK   the frame was dispatched and its state updated
//	NACK  no handler is registered for the frame's topic
//	ERR   the frame was malformed or its handler failed
package transport

import (
	"context"
	"errors"
)

// Reply tokens.
const (
	ReplyAck   = "ACK"
	ReplyNack  = "NACK"
	ReplyError = "ERR"
)

// Pattern is the messaging pattern of the inbound endpoint.
type Pattern string

const (
	// PatternReqRep answers every inbound frame with exactly one reply.
	PatternReqRep Pattern = "reqrep"
	// PatternPubSub subscribes to topics and never replies.
	PatternPubSub Pattern = "pubsub"
)

// Valid reports whether p is a known pattern.
func (p Pattern) Valid() bool {
	return p == PatternReqRep || p == PatternPubSub
}

// ErrClosed is returned by endpoints used after Close.
var ErrClosed = errors.New("endpoint closed")

// Endpoint is a bound or connected socket exchanging multipart frames.
// An Endpoint is used by one goroutine for Recv and one for Send.
type Endpoint interface {
	// Recv blocks until the next frame arrives, the endpoint is closed or
	// ctx is done.
	Recv(ctx context.Context) ([][]byte, error)
	Send(ctx context.Context, parts ...[]byte) error
	Close() error
}

// Opener creates the endpoints of a bridge.
type Opener interface {
	// Inbound binds the endpoint frames arrive on. Under PatternPubSub it
	// subscribes to topics.
	Inbound(ctx context.Context, p Pattern, topics []string) (Endpoint, error)
	// Outbound connects the endpoint requests are sent to a downstream
	// peer on.
	Outbound(ctx context.Context) (Endpoint, error)
}
