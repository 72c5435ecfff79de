// Package metrics registers the Prometheus collectors of the API.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collectors struct {
	Mutations      *prometheus.CounterVec
	PositionShifts *prometheus.CounterVec
	CascadeUpdates *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
}

var collectors = sync.OnceValue(func() *Collectors {
	return &Collectors{
		Mutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cragdb",
			Name:      "mutations_total",
			Help:      "Transactional writes by entity, operation and result.",
		}, []string{"entity", "op", "result"}),
		PositionShifts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cragdb",
			Name:      "position_shifts_total",
			Help:      "Siblings moved to make room for a placed entity.",
		}, []string{"entity"}),
		CascadeUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cragdb",
			Name:      "cascade_updates_total",
			Help:      "Children whose publish status was rewritten by a cascade.",
		}, []string{"entity"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cragdb",
			Name:      "query_cache_lookups_total",
			Help:      "Query cache lookups by result (hit/miss/error).",
		}, []string{"result"}),
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cragdb",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cragdb",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests by route.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
	}
})

// Get returns the process-wide collectors, registering them on first use.
func Get() *Collectors {
	return collectors()
}
