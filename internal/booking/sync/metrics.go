package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_mutations_total",
		Help: "Optimistic mutations grouped by operation and outcome.",
	}, []string{"op", "result"})

	detailRevalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_detail_revalidations_total",
		Help: "Background detail refreshes that completed successfully.",
	})
)
