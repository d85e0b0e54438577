package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Note: cacheHits uses no labels to avoid allocation overhead on the
	// hot path; misses are rare enough to afford a reason label.
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_cache_hits_total",
		Help: "Total number of idempotency cache hits (replays)",
	})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idempotency_cache_misses_total",
		Help: "Total number of idempotency cache misses",
	}, []string{"reason"}) // not_found, expired

	cacheWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_cache_waits_total",
		Help: "Requests that blocked on another in-flight attempt for the same key",
	})

	cacheReservations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "idempotency_cache_reservations",
		Help: "Idempotency reservations currently held by in-flight attempts",
	})
)
