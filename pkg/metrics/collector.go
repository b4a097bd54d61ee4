// Package metrics exposes stream and feed activity to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/stream"
)

const namespace = "wormhole"

// Collector records stream session events on its own registry.
type Collector struct {
	registry *prometheus.Registry

	sessionsActive *prometheus.GaugeVec
	sessionsTotal  *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	failures       *prometheus.CounterVec
	encodeDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		sessionsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of stream sessions currently open",
			},
			[]string{"route"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of stream sessions opened",
			},
			[]string{"route"},
		),
		framesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_sent_total",
				Help:      "Total number of frames written to clients",
			},
			[]string{"route"},
		),
		bytesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_sent_total",
				Help:      "Total number of encoded payload bytes written to clients",
			},
			[]string{"route"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_failures_total",
				Help:      "Total number of failed stream cycles by kind",
			},
			[]string{"route", "kind"},
		),
		encodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "encode_duration_seconds",
				Help:      "Time taken to encode a single frame",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"route"},
		),
	}
}

// RegisterFeed exports the published frame count of a feed, read on
// every scrape.
func (c *Collector) RegisterFeed(name string, published func() uint64) {
	err := c.registry.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "feed_frames_published_total",
			Help:        "Total number of frames published to a feed",
			ConstLabels: prometheus.Labels{"feed": name},
		},
		func() float64 { return float64(published()) },
	))
	if err != nil {
		log.Warn("Unable to register metrics for feed [%s]: %v", name, err)
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) SessionOpened(info stream.Info) {
	c.sessionsActive.WithLabelValues(info.Route).Inc()
	c.sessionsTotal.WithLabelValues(info.Route).Inc()
}

func (c *Collector) FrameSent(info stream.Info, bytes int, encodeTook time.Duration) {
	c.framesSent.WithLabelValues(info.Route).Inc()
	c.bytesSent.WithLabelValues(info.Route).Add(float64(bytes))
	c.encodeDuration.WithLabelValues(info.Route).Observe(encodeTook.Seconds())
}

func (c *Collector) SessionFailed(info stream.Info, kind stream.ErrorKind) {
	c.failures.WithLabelValues(info.Route, string(kind)).Inc()
}

func (c *Collector) SessionClosed(info stream.Info) {
	c.sessionsActive.WithLabelValues(info.Route).Dec()
}
