package offlinecache

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts what the worker does. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	responses       *prometheus.CounterVec
	storeFailures   *prometheus.CounterVec
	sweptPartitions prometheus.Counter
	purgedEntries   prometheus.Counter
	syncedActions   prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	responses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_responses_total",
		Help: "Responses produced, by strategy and outcome",
	}, []string{"strategy", "outcome"})

	storeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_store_failures_total",
		Help: "Failed cache writes, by partition",
	}, []string{"partition"})

	sweptPartitions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_swept_partitions_total",
		Help: "Stale partitions deleted on activation",
	})

	purgedEntries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_purged_entries_total",
		Help: "Authenticated entries deleted on logout",
	})

	syncedActions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_synced_actions_total",
		Help: "Offline actions replayed by background sync",
	})

	registry.MustRegister(responses, storeFailures, sweptPartitions, purgedEntries, syncedActions)

	return &Metrics{
		registry:        registry,
		responses:       responses,
		storeFailures:   storeFailures,
		sweptPartitions: sweptPartitions,
		purgedEntries:   purgedEntries,
		syncedActions:   syncedActions,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeResponse(strategy, outcome string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) observeStoreFailure(partition string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(partition).Inc()
}

func (m *Metrics) observeSwept(n int) {
	if m == nil {
		return
	}
	m.sweptPartitions.Add(float64(n))
}

func (m *Metrics) observePurged(n int) {
	if m == nil {
		return
	}
	m.purgedEntries.Add(float64(n))
}

func (m *Metrics) observeSynced(n int) {
	if m == nil {
		return
	}
	m.syncedActions.Add(float64(n))
}
