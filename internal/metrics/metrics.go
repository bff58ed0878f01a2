package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instruments for the screening core.
type Metrics struct {
	screenings      *prometheus.CounterVec
	failOpens       prometheus.Counter
	signalErrors    *prometheus.CounterVec
	screeningTime   prometheus.Histogram
	reputationHits  prometheus.Counter
	reputationMiss  prometheus.Counter
	batchFlushes    prometheus.Counter
	batchFlushSize  prometheus.Histogram
	verifySuccesses prometheus.Counter
	verifyFailures  prometheus.Counter
}

// New creates and registers the screening metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		screenings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "call_screener",
			Name:      "screenings_total",
			Help:      "Screening decisions by action",
		}, []string{"action"}),
		failOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "call_screener",
			Name:      "fail_open_total",
			Help:      "Screenings that failed open",
		}),
		signalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "call_screener",
			Name:      "signal_errors_total",
			Help:      "Signal fetches degraded to absent, by source",
		}, []string{"source"}),
		screeningTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "call_screener",
			Name:      "screening_duration_seconds",
			Help:      "End-to-end screening latency",
			Buckets:   prometheus.DefBuckets,
		}),
		reputationHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "call_screener",
			Name:      "reputation_cache_hits_total",
			Help:      "Reputation lookups served from a fresh record",
		}),
		reputationMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "call_screener",
			Name:      "reputation_cache_misses_total",
			Help:      "Reputation lookups that enqueued a recompute",
		}),
		batchFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "call_screener",
			Name:      "reputation_batch_flushes_total",
			Help:      "Reputation batch queue flushes",
		}),
		batchFlushSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "call_screener",
			Name:      "reputation_batch_flush_size",
			Help:      "Numbers recomputed per batch flush",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
		verifySuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "call_screener",
			Name:      "verifications_success_total",
			Help:      "Verification codes accepted",
		}),
		verifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "call_screener",
			Name:      "verifications_failure_total",
			Help:      "Verification codes rejected",
		}),
	}
	reg.MustRegister(
		m.screenings, m.failOpens, m.signalErrors, m.screeningTime,
		m.reputationHits, m.reputationMiss, m.batchFlushes, m.batchFlushSize,
		m.verifySuccesses, m.verifyFailures,
	)
	return m
}

// NewNop creates metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) Screening(action string, elapsed time.Duration) {
	m.screenings.WithLabelValues(action).Inc()
	m.screeningTime.Observe(elapsed.Seconds())
}

func (m *Metrics) FailOpen() { m.failOpens.Inc() }

func (m *Metrics) SignalError(source string) { m.signalErrors.WithLabelValues(source).Inc() }

func (m *Metrics) ReputationHit() { m.reputationHits.Inc() }

func (m *Metrics) ReputationMiss() { m.reputationMiss.Inc() }

func (m *Metrics) VerifySuccess() { m.verifySuccesses.Inc() }

func (m *Metrics) VerifyFailure() { m.verifyFailures.Inc() }

func (m *Metrics) BatchFlush(size int) {
	m.batchFlushes.Inc()
	m.batchFlushSize.Observe(float64(size))
}
