package transport

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NATS opens endpoints on a NATS server. Topics travel as the last part
// of the subject: a frame (topic, payload) arrives on InboundPrefix+topic
// and is sent downstream on OutboundPrefix+topic.
type NATS struct {
	URL            string
	InboundPrefix  string
	OutboundPrefix string
	Name           string
}

var _ Opener = NATS{}

// ErrNoReplySubject is returned when replying to a frame that was
// published without a reply subject.
var ErrNoReplySubject = errors.New("frame carried no reply subject")

func (n NATS) connect() (*nats.Conn, error) {
	opts := []nats.Option{nats.MaxReconnects(-1)}
	if n.Name != "" {
		opts = append(opts, nats.Name(n.Name))
	}
	nc, err := nats.Connect(n.URL, opts...)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to %s", n.URL)
	}
	return nc, nil
}

func (n NATS) Inbound(_ context.Context, p Pattern, topics []string) (Endpoint, error) {
	if !p.Valid() {
		return nil, pkgerrors.Errorf("unsupported pattern %q", p)
	}
	if err := validPrefix(n.InboundPrefix); err != nil {
		return nil, err
	}

	nc, err := n.connect()
	if err != nil {
		return nil, err
	}

	e := newNATSEndpoint(nc, n.InboundPrefix)
	e.replies = p == PatternReqRep

	subjects := []string{n.InboundPrefix + ">"}
	if p == PatternPubSub {
		subjects = subjects[:0]
		for _, t := range topics {
			subjects = append(subjects, n.InboundPrefix+t)
		}
	}
	for _, subj := range subjects {
		sub, err := nc.ChanSubscribe(subj, e.ch)
		if err != nil {
			_ = e.Close()
			return nil, pkgerrors.Wrapf(err, "failed to subscribe to %s", subj)
		}
		e.subs = append(e.subs, sub)
	}

	logrus.WithFields(logrus.Fields{
		"url":      n.URL,
		"pattern":  p,
		"subjects": subjects,
	}).Info("inbound subscription ready")

	return e, nil
}

func (n NATS) Outbound(_ context.Context) (Endpoint, error) {
	if err := validPrefix(n.OutboundPrefix); err != nil {
		return nil, err
	}

	nc, err := n.connect()
	if err != nil {
		return nil, err
	}

	e := newNATSEndpoint(nc, n.OutboundPrefix)
	e.inbox = nats.NewInbox()
	sub, err := nc.ChanSubscribe(e.inbox, e.ch)
	if err != nil {
		_ = e.Close()
		return nil, pkgerrors.Wrapf(err, "failed to subscribe to reply inbox")
	}
	e.subs = append(e.subs, sub)

	logrus.WithField("url", n.URL).Info("outbound connection ready")

	return e, nil
}

type natsEndpoint struct {
	nc     *nats.Conn
	prefix string
	subs   []*nats.Subscription
	ch     chan *nats.Msg
	done   chan struct{}
	once   sync.Once

	// inbound request-reply: reply subject of the frame being handled
	replies bool
	mu      sync.Mutex
	reply   string

	// outbound: where downstream replies arrive
	inbox string
}

func newNATSEndpoint(nc *nats.Conn, prefix string) *natsEndpoint {
	return &natsEndpoint{
		nc:     nc,
		prefix: prefix,
		ch:     make(chan *nats.Msg, 64),
		done:   make(chan struct{}),
	}
}

func (e *natsEndpoint) Recv(ctx context.Context) ([][]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrClosed
	case msg := <-e.ch:
		if e.inbox != "" {
			return [][]byte{msg.Data}, nil
		}
		if e.replies {
			e.mu.Lock()
			e.reply = msg.Reply
			e.mu.Unlock()
		}
		return [][]byte{[]byte(TopicFromSubject(e.prefix, msg.Subject)), msg.Data}, nil
	}
}

func (e *natsEndpoint) Send(ctx context.Context, parts ...[]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	if e.inbox != "" {
		if len(parts) != 2 {
			return pkgerrors.Errorf("expected topic and payload, got %d parts", len(parts))
		}
		return e.nc.PublishRequest(e.prefix+string(parts[0]), e.inbox, parts[1])
	}

	if !e.replies {
		return pkgerrors.New("subscription endpoints cannot send")
	}
	e.mu.Lock()
	reply := e.reply
	e.reply = ""
	e.mu.Unlock()
	if reply == "" {
		return ErrNoReplySubject
	}
	return e.nc.Publish(reply, joinParts(parts))
}

func (e *natsEndpoint) Close() error {
	e.once.Do(func() {
		close(e.done)
		for _, sub := range e.subs {
			_ = sub.Unsubscribe()
		}
		e.nc.Close()
	})
	return nil
}

// TopicFromSubject strips prefix from a subject.
func TopicFromSubject(prefix, subject string) string {
	return strings.TrimPrefix(subject, prefix)
}

func validPrefix(prefix string) error {
	if prefix == "" || !strings.HasSuffix(prefix, ".") {
		return pkgerrors.Errorf("subject prefix %q must be non-empty and end with a dot", prefix)
	}
	return nil
}

func joinParts(parts [][]byte) []byte {
	if len(parts) == 1 {
		return parts[0]
	}
	var b []byte
	for i, p := range parts {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, p...)
	}
	return b
}
