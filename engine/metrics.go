package engine

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "oracle"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of Secure-Mode requests committed.
	RequestsCreated metrics.Counter
	// Number of successful reveals.
	Reveals metrics.Counter
	// Number of consumer callbacks that failed.
	CallbackFailures metrics.Counter
	// Number of Instant-Mode values delivered.
	InstantRandoms metrics.Counter
	// Number of seeds written into the ring.
	SeedsGenerated metrics.Counter

	// Requests currently pending reveal.
	PendingRequests metrics.Gauge
	// Valid seeds currently in the ring.
	ValidSeeds metrics.Gauge
	// Entropy contributions ever applied.
	EntropyContributions metrics.Gauge

	// Span length of revealed requests, in blocks.
	RevealSpan metrics.Histogram
	// Wall-clock duration of consumer callbacks, in seconds.
	CallbackDuration metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		RequestsCreated: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests_created_total",
			Help:      "Number of Secure-Mode requests committed.",
		}, labels).With(labelsAndValues...),
		Reveals: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "reveals_total",
			Help:      "Number of successful reveals.",
		}, labels).With(labelsAndValues...),
		CallbackFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "callback_failures_total",
			Help:      "Number of consumer callbacks that failed.",
		}, labels).With(labelsAndValues...),
		InstantRandoms: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "instant_randoms_total",
			Help:      "Number of Instant-Mode values delivered.",
		}, labels).With(labelsAndValues...),
		SeedsGenerated: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "seeds_generated_total",
			Help:      "Number of seeds written into the ring.",
		}, labels).With(labelsAndValues...),
		PendingRequests: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pending_requests",
			Help:      "Requests currently pending reveal.",
		}, labels).With(labelsAndValues...),
		ValidSeeds: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "valid_seeds",
			Help:      "Valid seeds currently in the ring.",
		}, labels).With(labelsAndValues...),
		EntropyContributions: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "entropy_contributions",
			Help:      "Entropy contributions ever applied.",
		}, labels).With(labelsAndValues...),
		RevealSpan: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "reveal_span_blocks",
			Help:      "Span length of revealed requests, in blocks.",
			Buckets:   stdprometheus.ExponentialBuckets(8, 2, 10),
		}, labels).With(labelsAndValues...),
		CallbackDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "callback_duration_seconds",
			Help:      "Wall-clock duration of consumer callbacks, in seconds.",
			Buckets:   stdprometheus.DefBuckets,
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		RequestsCreated:      discard.NewCounter(),
		Reveals:              discard.NewCounter(),
		CallbackFailures:     discard.NewCounter(),
		InstantRandoms:       discard.NewCounter(),
		SeedsGenerated:       discard.NewCounter(),
		PendingRequests:      discard.NewGauge(),
		ValidSeeds:           discard.NewGauge(),
		EntropyContributions: discard.NewGauge(),
		RevealSpan:           discard.NewHistogram(),
		CallbackDuration:     discard.NewHistogram(),
	}
}
