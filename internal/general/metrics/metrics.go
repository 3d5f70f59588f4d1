package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the broker, consumer and peer-call instruments of one service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reconnectAttempts prometheus.Counter
	reconnects        prometheus.Counter
	connected         prometheus.Gauge
	consumed          *prometheus.CounterVec
	handleLatency     *prometheus.HistogramVec
	published         *prometheus.CounterVec
	peerCalls         *prometheus.CounterVec
}

// New registers the instruments on reg. A nil registerer defaults to the global one.
// Registering twice on the same registerer reuses the existing collectors.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_reconnect_attempts_total",
			Help: "Reconnect attempts made after the broker connection was lost",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_reconnects_total",
			Help: "Successful broker reconnects",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broker_connected",
			Help: "1 while the broker connection and publishing channel are open",
		}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Consumed events by kind and outcome",
		}, []string{"event", "outcome"}),
		handleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "event_handle_seconds",
			Help:    "Handler latency per event kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Published events by routing key and outcome",
		}, []string{"routing_key", "outcome"}),
		peerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peer_requests_total",
			Help: "Entity validation calls by operation and result",
		}, []string{"operation", "result"}),
	}

	var err error
	if m.reconnectAttempts, err = register(reg, m.reconnectAttempts); err != nil {
		return nil, err
	}
	if m.reconnects, err = register(reg, m.reconnects); err != nil {
		return nil, err
	}
	if m.connected, err = register(reg, m.connected); err != nil {
		return nil, err
	}
	if m.consumed, err = register(reg, m.consumed); err != nil {
		return nil, err
	}
	if m.handleLatency, err = register(reg, m.handleLatency); err != nil {
		return nil, err
	}
	if m.published, err = register(reg, m.published); err != nil {
		return nil, err
	}
	if m.peerCalls, err = register(reg, m.peerCalls); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ReconnectAttempted() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// EventConsumed counts one settled delivery.
func (m *Metrics) EventConsumed(kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.consumed.WithLabelValues(kind, outcome).Inc()
	if took > 0 {
		m.handleLatency.WithLabelValues(kind).Observe(took.Seconds())
	}
}

func (m *Metrics) EventPublished(routingKey string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.published.WithLabelValues(routingKey, outcome).Inc()
}

func (m *Metrics) PeerCall(operation, result string) {
	if m == nil {
		return
	}
	m.peerCalls.WithLabelValues(operation, result).Inc()
}
