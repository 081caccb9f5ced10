package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EstimatorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clientpulse",
			Subsystem: "estimator",
			Name:      "latency_seconds",
			Help:      "Latency of estimator endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	EstimatorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clientpulse",
			Subsystem: "estimator",
			Name:      "errors_total",
			Help:      "Errors by estimator endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(EstimatorLatency, EstimatorErrors)
	})
}
