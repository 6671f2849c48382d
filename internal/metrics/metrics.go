// Package metrics exposes Prometheus metrics for a connection client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vovakirdan/wirechat-client/internal/wsclient"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "wirechat_client"

// Collector records lifecycle, connect, and send metrics.
type Collector struct {
	connectResults  *prometheus.CounterVec
	connectDuration *prometheus.HistogramVec
	lifecycleEvents *prometheus.CounterVec
	messages        prometheus.Counter
	messageBytes    prometheus.Counter
	sendFailures    *prometheus.CounterVec
	sent            prometheus.Counter
	open            prometheus.Gauge
}

// New registers the collector metrics on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Collector{
		connectResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_results_total",
			Help:      "Connect attempts by final status",
		}, []string{"status"}),

		connectDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time from connect start to final result",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"status"}),

		lifecycleEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle events by state",
		}, []string{"state"}),

		messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound frames delivered to subscribers",
		}),

		messageBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_bytes_received_total",
			Help:      "Payload bytes of inbound frames",
		}),

		sendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Rejected sends by reason code",
		}, []string{"reason"}),

		sent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames handed to the transport",
		}),

		open: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_open",
			Help:      "1 while the connection is open",
		}),
	}
}

// Observe subscribes to the client streams. The returned func unsubscribes.
func (c *Collector) Observe(client *wsclient.Client) (stop func()) {
	stopEvents := client.Events().Subscribe(func(ev wsclient.Event) {
		c.lifecycleEvents.WithLabelValues(ev.State.String()).Inc()
		switch ev.State {
		case wsclient.StateOpen:
			c.open.Set(1)
		case wsclient.StateClosed:
			c.open.Set(0)
		}
	})
	stopMessages := client.Messages().Subscribe(func(m wsclient.Message) {
		c.messages.Inc()
		c.messageBytes.Add(float64(len(m.Frame.Data)))
	})

	return func() {
		stopEvents()
		stopMessages()
	}
}

// ObserveConnect records a final connect result. Non-final results are ignored.
func (c *Collector) ObserveConnect(r wsclient.ConnectResult, elapsed time.Duration) {
	if !r.Final() {
		return
	}
	status := r.Status.String()
	c.connectResults.WithLabelValues(status).Inc()
	c.connectDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveSend records the outcome of a send call.
func (c *Collector) ObserveSend(err error) {
	if err == nil {
		c.sent.Inc()
		return
	}
	c.sendFailures.WithLabelValues(wsclient.Code(err)).Inc()
}
