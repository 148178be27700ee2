package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every collector exported by the API process.
// All methods are safe on a nil receiver so components can run without metrics.
type Collector struct {
	mediaResources  *prometheus.GaugeVec
	callTransitions *prometheus.CounterVec
	messages        *prometheus.CounterVec
	connections     prometheus.Gauge
	gatherer        prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Collector {
	c := &Collector{
		mediaResources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "media_resources_active",
				Help: "Live SFU resources by kind (routing_context, transport, producer, consumer)",
			},
			[]string{"kind"},
		),
		callTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_transitions_total",
				Help: "Call status transitions by resulting status",
			},
			[]string{"status"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaling_messages_total",
				Help: "Signaling messages handled by event and result",
			},
			[]string{"event", "result"},
		),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_connections_active",
			Help: "Open signaling sockets",
		}),
		gatherer: reg,
	}
	reg.MustRegister(c.mediaResources, c.callTransitions, c.messages, c.connections)
	return c
}

func (c *Collector) ResourceOpened(kind string) {
	if c == nil {
		return
	}
	c.mediaResources.WithLabelValues(kind).Inc()
}

func (c *Collector) ResourceClosed(kind string) {
	if c == nil {
		return
	}
	c.mediaResources.WithLabelValues(kind).Dec()
}

func (c *Collector) CallTransition(status string) {
	if c == nil {
		return
	}
	c.callTransitions.WithLabelValues(status).Inc()
}

func (c *Collector) SignalingMessage(event, result string) {
	if c == nil {
		return
	}
	c.messages.WithLabelValues(event, result).Inc()
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connections.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connections.Dec()
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
