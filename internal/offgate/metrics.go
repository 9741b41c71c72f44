package offgate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics collects cache and queue counters. All components take it by
// pointer and tolerate nil, so tests can pass nothing.
type metrics struct {
	registry *prometheus.Registry

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	evictions   *prometheus.CounterVec

	queueDepth    prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueReplayed prometheus.Counter
	queueDropped  prometheus.Counter

	fallbacks *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offgate_cache_hits_total",
			Help: "Cache hits per namespace.",
		}, []string{"namespace"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offgate_cache_misses_total",
			Help: "Cache misses per namespace.",
		}, []string{"namespace"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offgate_cache_evictions_total",
			Help: "Entries removed per namespace and reason (ceiling, age, quota, retired).",
		}, []string{"namespace", "reason"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "offgate_queue_depth",
			Help: "Queued offline mutations awaiting replay.",
		}),
		queueEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "offgate_queue_enqueued_total",
			Help: "Mutations captured after a network-level POST failure.",
		}),
		queueReplayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "offgate_queue_replayed_total",
			Help: "Mutations successfully replayed against the origin.",
		}),
		queueDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "offgate_queue_dropped_total",
			Help: "Mutations dropped after exceeding the retention window.",
		}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "offgate_fallbacks_total",
			Help: "Requests answered by the fallback handler, per kind.",
		}, []string{"kind"}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) hit(ns Namespace) {
	if m != nil {
		m.cacheHits.WithLabelValues(ns.String()).Inc()
	}
}

func (m *metrics) miss(ns Namespace) {
	if m != nil {
		m.cacheMisses.WithLabelValues(ns.String()).Inc()
	}
}

func (m *metrics) evicted(ns Namespace, reason string, n int) {
	if m != nil && n > 0 {
		m.evictions.WithLabelValues(ns.String(), reason).Add(float64(n))
	}
}

func (m *metrics) setQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *metrics) enqueued() {
	if m != nil {
		m.queueEnqueued.Inc()
	}
}

func (m *metrics) replayed() {
	if m != nil {
		m.queueReplayed.Inc()
	}
}

func (m *metrics) dropped(n int) {
	if m != nil && n > 0 {
		m.queueDropped.Add(float64(n))
	}
}

func (m *metrics) fellBack(kind string) {
	if m != nil {
		m.fallbacks.WithLabelValues(kind).Inc()
	}
}
