package store

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "store"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Transactions counts committed transactions.
	Transactions metrics.Counter
	// FailedTransactions counts transactions that were rolled back.
	FailedTransactions metrics.Counter
	// WriteDuration is the time in seconds spent applying and flushing a
	// transaction.
	WriteDuration metrics.Histogram
	// WriteSize is the number of keys written or deleted by a transaction.
	WriteSize metrics.Histogram

	ChainHeight  metrics.Gauge
	HeaderHeight metrics.Gauge
	PrunedHeight metrics.Gauge
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
		Transactions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "transactions",
			Help:      "Number of committed transactions.",
		}, labels).With(labelsAndValues...),
		FailedTransactions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "failed_transactions",
			Help:      "Number of transactions that were rolled back.",
		}, labels).With(labelsAndValues...),
		WriteDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "write_duration_seconds",
			Help:      "Time spent applying and flushing a transaction.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0005, 2, 14),
		}, labels).With(labelsAndValues...),
		WriteSize: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "write_size",
			Help:      "Number of keys written or deleted by a transaction.",
			Buckets:   stdprometheus.ExponentialBuckets(1, 4, 10),
		}, labels).With(labelsAndValues...),
		ChainHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "chain_height",
			Help:      "Height of the best block.",
		}, labels).With(labelsAndValues...),
		HeaderHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "header_height",
			Help:      "Height of the header chain tip.",
		}, labels).With(labelsAndValues...),
		PrunedHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pruned_height",
			Help:      "Height up to which accumulator checkpoints are merged.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Transactions:       discard.NewCounter(),
		FailedTransactions: discard.NewCounter(),
		WriteDuration:      discard.NewHistogram(),
		WriteSize:          discard.NewHistogram(),
		ChainHeight:        discard.NewGauge(),
		HeaderHeight:       discard.NewGauge(),
		PrunedHeight:       discard.NewGauge(),
	}
}
