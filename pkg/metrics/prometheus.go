package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tradesStored   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	switchProb     *prometheus.GaugeVec
	switchProbDist prometheus.Histogram
	fallbacks      *prometheus.CounterVec
	insufficient   prometheus.Counter
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		tradesStored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientpulse_trades_stored_total",
				Help: "Total trade records routed to a backend",
			},
			[]string{"backend", "client_id"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		switchProb: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clientpulse_switch_probability",
				Help: "Last estimated switch probability per client",
			},
			[]string{"client_id"},
		),
		switchProbDist: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clientpulse_switch_probability_distribution",
				Help:    "Distribution of estimated switch probabilities",
				Buckets: prometheus.LinearBuckets(0.15, 0.05, 15),
			},
		),
		fallbacks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientpulse_signal_fallbacks_total",
				Help: "Estimator signals that failed and used the fallback score",
			},
			[]string{"signal"},
		),
		insufficient: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "clientpulse_insufficient_history_total",
				Help: "Estimates answered with the baseline due to thin history",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clientpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTradeStored records a trade record routed to a backend.
func (r *Recorder) RecordTradeStored(backend, clientID string) {
	r.tradesStored.WithLabelValues(backend, clientID).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSwitchProbability records the latest estimate for a client.
func (r *Recorder) RecordSwitchProbability(clientID string, p float64) {
	r.switchProb.WithLabelValues(clientID).Set(p)
	r.switchProbDist.Observe(p)
}

// RecordSignalFallback records a signal that degraded to its fallback score.
func (r *Recorder) RecordSignalFallback(signal string) {
	r.fallbacks.WithLabelValues(signal).Inc()
}

// RecordInsufficientHistory records a baseline answer for a thin client.
func (r *Recorder) RecordInsufficientHistory() {
	r.insufficient.Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
