package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "review_eligibility_checks_total",
	Help: "Eligibility checks grouped by resolution.",
}, []string{"result"})
