// Package metrics exposes Prometheus instruments for camera sessions and
// serial relays. A nil *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	SkipLength = "length"
	SkipDecode = "decode"

	DirectionToSerial = "tcp_to_serial"
	DirectionToTCP    = "serial_to_tcp"
)

type Config struct {
	// Namespace is the metrics namespace (default: "stivision").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

type Collector struct {
	framesTotal    prometheus.Counter
	bytesTotal     prometheus.Counter
	framesSkipped  *prometheus.CounterVec
	fps            prometheus.Gauge
	throughputMbit prometheus.Gauge
	sessionState   prometheus.Gauge
	reconnects     prometheus.Counter
	relayBytes     *prometheus.CounterVec
	relayClients   prometheus.Gauge
}

func New(opts ...Option) *Collector {
	config := Config{
		Namespace: "stivision",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		framesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "frames_total",
			Help:      "Frames received with a valid header",
		}),
		bytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "frame_bytes_total",
			Help:      "Payload bytes received",
		}),
		framesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames dropped by the receive loop",
		}, []string{"reason"}),
		fps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "fps",
			Help:      "Moving average of decoded frames per second",
		}),
		throughputMbit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "throughput_mbit",
			Help:      "Last published network throughput in megabytes per second",
		}),
		sessionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "session_state",
			Help:      "Current session state (0=disconnected .. 5=closed)",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "reconnects_total",
			Help:      "Failed connection attempts that were retried",
		}),
		relayBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "relay_bytes_total",
			Help:      "Bytes forwarded by the serial relay",
		}, []string{"direction"}),
		relayClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "relay_clients",
			Help:      "TCP peers currently attached to the serial relay",
		}),
	}
}

func (c *Collector) FrameReceived(size int) {
	if c == nil {
		return
	}
	c.framesTotal.Inc()
	c.bytesTotal.Add(float64(size))
}

func (c *Collector) FrameSkipped(reason string) {
	if c == nil {
		return
	}
	c.framesSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) SetRates(fps, mbit float64) {
	if c == nil {
		return
	}
	c.fps.Set(fps)
	c.throughputMbit.Set(mbit)
}

func (c *Collector) SetState(state int) {
	if c == nil {
		return
	}
	c.sessionState.Set(float64(state))
}

func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

func (c *Collector) RelayBytes(direction string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.relayBytes.WithLabelValues(direction).Add(float64(n))
}

func (c *Collector) RelayClient(delta float64) {
	if c == nil {
		return
	}
	c.relayClients.Add(delta)
}
