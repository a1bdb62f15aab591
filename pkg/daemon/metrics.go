package daemon

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/extra-connectors/tpbridge/pkg/bridge"
	"github.com/extra-connectors/tpbridge/pkg/router"
)

const otherTopic = "other"

type metrics struct {
	registry *prometheus.Registry
	known    map[string]bool

	frames         *prometheus.CounterVec
	replyFailures  *prometheus.CounterVec
	frameDuration  *prometheus.HistogramVec
	renderDuration prometheus.Histogram
	stateUpdates   *prometheus.CounterVec
	forwards       *prometheus.CounterVec
	restarts       prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		known: map[string]bool{
			router.TopicKeyboardLock:   true,
			router.TopicBatteryMonitor: true,
		},
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tpbridge_frames_total",
				Help: "Inbound frames by topic and reply token.",
			},
			[]string{"topic", "reply"},
		),
		replyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tpbridge_reply_send_failures_total",
				Help: "Replies that could not be delivered to the inbound peer.",
			},
			[]string{"topic"},
		),
		frameDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tpbridge_frame_duration_seconds",
				Help:    "Time spent handling an inbound frame.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"topic"},
		),
		renderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tpbridge_render_duration_seconds",
				Help:    "Time spent rendering the battery dashboard.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
			},
		),
		stateUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tpbridge_state_updates_total",
				Help: "State values pushed to the sinks.",
			},
			[]string{"state"},
		),
		forwards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tpbridge_forwarded_requests_total",
				Help: "Requests sent to the downstream peer.",
			},
			[]string{"result"},
		),
		restarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tpbridge_bridge_restarts_total",
				Help: "Bridge restarts after configuration reloads.",
			},
		),
	}

	m.registry.MustRegister(
		m.frames,
		m.replyFailures,
		m.frameDuration,
		m.renderDuration,
		m.stateUpdates,
		m.forwards,
		m.restarts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// topic keeps label cardinality bounded.
func (m *metrics) topic(t string) string {
	if m.known[t] {
		return t
	}
	return otherTopic
}

func (m *metrics) observeFrame(f bridge.Frame) {
	reply := f.Reply
	if reply == "" {
		reply = "none"
	}
	topic := m.topic(f.Topic)
	m.frames.WithLabelValues(topic, reply).Inc()
	if f.SendErr != nil {
		m.replyFailures.WithLabelValues(topic).Inc()
	}
	m.frameDuration.WithLabelValues(topic).Observe(f.Duration.Seconds())
}

func (m *metrics) observeRender(d time.Duration) {
	m.renderDuration.Observe(d.Seconds())
}

func (m *metrics) UpdateState(id, _ string) {
	m.stateUpdates.WithLabelValues(id).Inc()
}

func (m *metrics) observeForward(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.forwards.WithLabelValues(result).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
