package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_cache_hits_total",
		Help: "Cache reads served without a network fetch, by scope.",
	}, []string{"scope"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_cache_misses_total",
		Help: "Cache reads that required a fetch, by scope.",
	}, []string{"scope"})

	invalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_cache_invalidations_total",
		Help: "Explicit invalidations, by scope.",
	}, []string{"scope"})

	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_cache_evictions_total",
		Help: "Entries purged by the gc sweeper.",
	})
)
