package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"switchboard-sdk/pkg/types"
)

const (
	namespace = "switchboard"
	subsystem = "client"
)

// Collector holds the Prometheus series one client updates.
// A nil *Collector is valid and records nothing.
type Collector struct {
	messagesReceived  *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	handlerFailures   *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	connectionState   prometheus.Gauge
	errors            *prometheus.CounterVec
}

// NewCollector registers the client series on reg. Passing nil uses a fresh
// private registry so independent clients never collide.
func NewCollector(reg prometheus.Registerer, constLabels prometheus.Labels) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "messages_received_total",
			Help:        "Frames decoded from the session socket, by message type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "messages_sent_total",
			Help:        "Frames written to the session socket, by message type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "decode_errors_total",
			Help:        "Inbound frames that could not be decoded.",
			ConstLabels: constLabels,
		}),
		handlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "handler_failures_total",
			Help:        "Registered handlers that returned an error or panicked.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "reconnect_attempts_total",
			Help:        "Reconnection attempts scheduled after an unexpected closure.",
			ConstLabels: constLabels,
		}),
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "connection_state",
			Help:        "Current connection state (0 idle, 1 connecting, 2 connected, 3 closing, 4 closed, 5 failed).",
			ConstLabels: constLabels,
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "errors_total",
			Help:        "Errors delivered to error handlers, by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
	}
}

func (c *Collector) MessageReceived(t types.MessageType) {
	if c == nil {
		return
	}
	c.messagesReceived.WithLabelValues(string(t)).Inc()
}

func (c *Collector) MessageSent(t types.MessageType) {
	if c == nil {
		return
	}
	c.messagesSent.WithLabelValues(string(t)).Inc()
}

func (c *Collector) DecodeError() {
	if c == nil {
		return
	}
	c.decodeErrors.Inc()
}

// HandlerFailure counts a failed handler of the given kind ("message", "connection", "error").
func (c *Collector) HandlerFailure(handler string) {
	if c == nil {
		return
	}
	c.handlerFailures.WithLabelValues(handler).Inc()
}

func (c *Collector) ReconnectAttempt() {
	if c == nil {
		return
	}
	c.reconnectAttempts.Inc()
}

func (c *Collector) SetState(s types.ConnectionState) {
	if c == nil {
		return
	}
	c.connectionState.Set(float64(s))
}

func (c *Collector) Error(kind types.ErrorKind) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(kind.String()).Inc()
}
