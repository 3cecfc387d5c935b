package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/marktree/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marktree"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	moves         *prometheus.CounterVec
	moveDuration  prometheus.Histogram
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	refreshes     *prometheus.CounterVec
	coalesced     prometheus.Counter
	mutations     *prometheus.CounterVec
	gestures      *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Move attempts by result.",
		}, []string{"result"}),
		moveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "move_duration_seconds",
			Help:      "Latency of store move calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetches_total",
			Help:      "Full-tree reads performed by the cache, by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_fetch_duration_seconds",
			Help:      "Latency of full-tree reads.",
			Buckets:   prometheus.DefBuckets,
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Coalesced consumer refreshes, by result.",
		}, []string{"result"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_coalesced_events_total",
			Help:      "Store events absorbed into refreshes.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_events_total",
			Help:      "Store mutation events received, by kind.",
		}, []string{"kind"}),
		gestures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gestures_total",
			Help:      "Finished drag gestures, by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.moves, m.moveDuration,
		m.fetches, m.fetchDuration,
		m.refreshes, m.coalesced,
		m.mutations, m.gestures,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle callbacks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFetch: func(_ context.Context, e *domain.FetchEvent) {
			m.fetches.WithLabelValues(result(e.Err)).Inc()
			m.fetchDuration.Observe(e.Duration.Seconds())
		},
		OnMove: func(_ context.Context, e *domain.MoveEvent) {
			m.moves.WithLabelValues(e.Result).Inc()
			if e.Result != domain.MoveResultInFlight {
				m.moveDuration.Observe(e.Duration.Seconds())
			}
		},
		OnMutation: func(_ context.Context, e *domain.MutationEvent) {
			m.mutations.WithLabelValues(string(e.Kind)).Inc()
		},
		OnRefresh: func(_ context.Context, e *domain.RefreshEvent) {
			m.refreshes.WithLabelValues(result(e.Err)).Inc()
			m.coalesced.Add(float64(e.Coalesced))
		},
		OnGesture: func(_ context.Context, e *domain.GestureEvent) {
			m.gestures.WithLabelValues(e.Outcome).Inc()
		},
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
