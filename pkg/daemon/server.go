package daemon

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/extra-connectors/tpbridge/pkg/assets"
	"github.com/extra-connectors/tpbridge/pkg/battery"
	"github.com/extra-connectors/tpbridge/pkg/bridge"
	"github.com/extra-connectors/tpbridge/pkg/clock"
	"github.com/extra-connectors/tpbridge/pkg/config"
	"github.com/extra-connectors/tpbridge/pkg/events"
	"github.com/extra-connectors/tpbridge/pkg/render"
	"github.com/extra-connectors/tpbridge/pkg/router"
	"github.com/extra-connectors/tpbridge/pkg/sink"
	"github.com/extra-connectors/tpbridge/pkg/transport"
)

// Options configure a Server. Only Config is required.
type Options struct {
	Config config.Config
	// Assets defaults to the configured asset directory.
	Assets assets.Provider
	// Opener defaults to NewOpener.
	Opener func(config.Config) transport.Opener
	// Redis overrides the pool built from the configured address.
	Redis sink.ConnGetter
	Now   func() time.Time
}

// Server ties the bridge, the ticker and the state sinks together. The
// snapshot, asset cache and sinks live as long as the Server; the router,
// bridge and ticker are rebuilt on Restart.
type Server struct {
	conf      config.Config
	opener    func(config.Config) transport.Opener
	now       func() time.Time
	hub       *events.EventHub
	store     *sink.Store
	snap      *battery.Snapshot
	cache     *assets.Cache
	renderer  *render.Renderer
	validator *router.Validator
	metrics   *metrics
	sink      sink.Sink

	// dispatchMu is shared by every router, they all feed one snapshot.
	dispatchMu sync.Mutex

	mu     sync.Mutex
	router *router.Router
	bridge *bridge.Bridge
	ticker *clock.Ticker
	done   chan struct{}
	errc   chan error
}

// NewOpener returns the transport selected by c.
func NewOpener(c config.Config) transport.Opener {
	if c.Transport() == config.TransportNATS {
		return transport.NATS{
			URL:            c.NATSURL(),
			InboundPrefix:  c.InboundEndpoint(),
			OutboundPrefix: c.OutboundEndpoint(),
			Name:           "tpbridge",
		}
	}
	return transport.ZMQ{
		InboundAddr:  c.InboundEndpoint(),
		OutboundAddr: c.OutboundEndpoint(),
	}
}

func NewServer(o Options) (*Server, error) {
	if o.Config == nil {
		return nil, pkgerrors.New("config is required")
	}
	if err := o.Config.Validate(); err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid config")
	}
	if o.Assets == nil {
		o.Assets = assets.DirProvider(o.Config.AssetDir())
	}
	if o.Opener == nil {
		o.Opener = NewOpener
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	v, err := router.NewTelemetryValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		conf:      o.Config,
		opener:    o.Opener,
		now:       o.Now,
		hub:       events.NewEventHub(0),
		snap:      battery.NewSnapshot(),
		cache:     assets.NewCache(o.Assets),
		validator: v,
		metrics:   newMetrics(),
		errc:      make(chan error, 1),
	}
	s.store = sink.NewStore(s.hub)
	s.renderer = render.New(s.cache, render.WithObserver(s.metrics.observeRender))

	sinks := sink.Multi{s.store, s.metrics, sink.Log{Limit: 64}}
	pool := o.Redis
	if pool == nil && o.Config.RedisAddr() != "" {
		pool = sink.NewRedisPool(o.Config.RedisAddr())
	}
	if pool != nil {
		r := sink.NewRedis(pool)
		if err := r.Ping(); err != nil {
			logrus.WithError(err).Warn("redis is unreachable, states will be mirrored once it is up")
		}
		sinks = append(sinks, r)
	}
	s.sink = sinks

	return s, nil
}

// Start binds the bridge and starts the receive loop and the ticker.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Server) startLocked(ctx context.Context) error {
	if s.bridge != nil {
		return pkgerrors.New("server already started")
	}

	// Icons are loaded lazily on the first telemetry frame, warm them
	// up so a missing asset shows at startup.
	if err := s.renderer.Prepare(); err != nil {
		logrus.WithError(err).Warn("battery dashboard assets unavailable")
	}

	r := router.New(s.sink, router.DefaultTable(router.TableOptions{
		LockTrueLabel:  s.conf.LockTrueLabel(),
		LockFalseLabel: s.conf.LockFalseLabel(),
		Snapshot:       s.snap,
		Renderer:       s.renderer,
		Validator:      s.validator,
	}), router.WithLock(&s.dispatchMu))

	b, err := bridge.New(bridge.Options{
		Pattern:    transport.Pattern(s.conf.Pattern()),
		Policy:     bridge.Policy(s.conf.HandlerErrorPolicy()),
		Opener:     s.opener(s.conf),
		Dispatcher: r,
		OnFrame:    s.onFrame,
	})
	if err != nil {
		return err
	}

	tk, err := clock.NewTicker(s.conf.ClockSchedule(), clock.CurrentTimeTask(s.sink, s.now))
	if err != nil {
		return err
	}

	if err := b.Bind(ctx); err != nil {
		return err
	}

	// The loop outlives ctx, Stop and Restart end it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := b.Run(context.Background()); err != nil {
			logrus.WithError(err).Error("bridge stopped")
			select {
			case s.errc <- err:
			default:
			}
		}
	}()

	tk.Start()

	s.router, s.bridge, s.ticker, s.done = r, b, tk, done
	return nil
}

func (s *Server) stopLocked() {
	// The ticker goes first so no tick lands between two bridges.
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close bridge endpoints")
		}
		<-s.done
		s.bridge = nil
	}
	s.router = nil
}

// Restart stops the ticker and the bridge and starts them again with the
// current configuration. Snapshot and stored states survive.
func (s *Server) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conf.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config")
	}

	s.stopLocked()
	s.metrics.restarts.Inc()
	logrus.Info("restarting bridge")
	return s.startLocked(ctx)
}

// Stop stops the ticker and closes the bridge.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Errors delivers the error of a bridge that stopped on its own.
func (s *Server) Errors() <-chan error {
	return s.errc
}

func (s *Server) current() (*router.Router, *bridge.Bridge, *clock.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router, s.bridge, s.ticker
}

func (s *Server) onFrame(f bridge.Frame) {
	s.metrics.observeFrame(f)

	ev := events.FrameReceivedEvent{
		Topic: f.Topic,
		Reply: f.Reply,
		Ts:    s.now().Unix(),
	}
	switch {
	case f.Err != nil:
		ev.Error = f.Err.Error()
	case f.SendErr != nil:
		ev.Error = "reply not delivered: " + f.SendErr.Error()
	}
	s.hub.Publish(events.FrameReceived, ev)
}
