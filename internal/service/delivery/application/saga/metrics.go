// internal/service/delivery/application/saga/metrics.go
package saga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sagaAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_saga_attempts_total",
		Help: "Total number of stock reservation sagas started.",
	}, []string{"strategy"})

	sagaFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_saga_failures_total",
		Help: "Total number of failed stock reservation sagas by stage.",
	}, []string{"strategy", "stage"})

	sagaCompensations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_saga_compensations_total",
		Help: "Total number of compensating stock restorations issued.",
	})

	sagaCompensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_saga_compensation_failures_total",
		Help: "Total number of compensating stock restorations that failed and need manual attention.",
	})
)
