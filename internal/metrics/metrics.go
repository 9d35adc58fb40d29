package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every recorder becomes a
// no-op.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	online      prometheus.Gauge
	events      *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	evictions   prometheus.Counter
}

func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	connections := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_connections"})
	online := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "presence_online_users"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ws_events_total"}, []string{"event"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ws_deliveries_total"}, []string{"mode", "result"})
	evictions := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "ws_slow_consumer_evictions_total"})
	r.MustRegister(connections, online, events, deliveries, evictions)

	return &Metrics{
		registry:    r,
		connections: connections,
		online:      online,
		events:      events,
		deliveries:  deliveries,
		evictions:   evictions,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SetOnline(n int) {
	if m != nil {
		m.online.Set(float64(n))
	}
}

func (m *Metrics) Event(name string) {
	if m != nil {
		m.events.WithLabelValues(name).Inc()
	}
}

// Delivery records one attempt; mode is unicast, multicast or broadcast.
func (m *Metrics) Delivery(mode string, delivered bool) {
	if m == nil {
		return
	}
	result := "miss"
	if delivered {
		result = "delivered"
	}
	m.deliveries.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) Eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}
