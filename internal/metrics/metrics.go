// Package metrics exposes Prometheus instruments for the speech pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saytext_cache_lookups_total",
			Help: "Cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saytext_requests_total",
			Help: "Say requests by transport and outcome.",
		},
		[]string{"transport", "status"},
	)
	synthesisSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saytext_synthesis_seconds",
			Help:    "Time spent synthesizing a phrase.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"engine"},
	)
	synthesisFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saytext_synthesis_failures_total",
			Help: "Failed synthesis attempts by engine.",
		},
		[]string{"engine"},
	)
)

func init() {
	prometheus.MustRegister(
		cacheLookupsTotal,
		requestsTotal,
		synthesisSeconds,
		synthesisFailuresTotal,
	)
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

// ObserveRequest counts a finished request.
func ObserveRequest(transport, status string) {
	requestsTotal.WithLabelValues(transport, status).Inc()
}

// ObserveSynthesis records synthesis latency and failures.
func ObserveSynthesis(engine string, d time.Duration, err error) {
	if err != nil {
		synthesisFailuresTotal.WithLabelValues(engine).Inc()
		return
	}
	synthesisSeconds.WithLabelValues(engine).Observe(d.Seconds())
}
