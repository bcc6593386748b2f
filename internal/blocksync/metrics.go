package blocksync

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this package.
	MetricsSubsystem = "blocksync"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Syncing is 1 while a sync round is in progress.
	Syncing metrics.Gauge
	// SyncHeight is the height of the last block committed by block sync.
	SyncHeight metrics.Gauge
	// TargetHeight is the header tip block sync is catching up with.
	TargetHeight metrics.Gauge

	BlocksSynced  metrics.Counter
	HeadersSynced metrics.Counter
	// Reorgs counts header syncs that rewound the local chain.
	Reorgs metrics.Counter
	// BlockValidationTime is the time in seconds spent validating a block
	// body.
	BlockValidationTime metrics.Histogram
	// PeerFailures counts failed sync rounds, labeled by whether the peer
	// got banned.
	PeerFailures metrics.Counter

	BlocksServed  metrics.Counter
	HeadersServed metrics.Counter
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
		Syncing: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "syncing",
			Help:      "Whether or not a node is synchronizing. 1 if yes, 0 if no.",
		}, labels).With(labelsAndValues...),
		SyncHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sync_height",
			Help:      "Height of the last block committed by block sync.",
		}, labels).With(labelsAndValues...),
		TargetHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "target_height",
			Help:      "Height of the header tip block sync is catching up with.",
		}, labels).With(labelsAndValues...),
		BlocksSynced: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blocks_synced",
			Help:      "Number of blocks committed by block sync.",
		}, labels).With(labelsAndValues...),
		HeadersSynced: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "headers_synced",
			Help:      "Number of headers committed by header sync.",
		}, labels).With(labelsAndValues...),
		Reorgs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "reorgs",
			Help:      "Number of header syncs that rewound the local chain.",
		}, labels).With(labelsAndValues...),
		BlockValidationTime: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "block_validation_time",
			Help:      "Time spent validating a block body in seconds.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0005, 2, 12),
		}, labels).With(labelsAndValues...),
		PeerFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peer_failures",
			Help:      "Number of sync rounds that failed because of a peer.",
		}, append(labels, "banned")).With(labelsAndValues...),
		BlocksServed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "blocks_served",
			Help:      "Number of blocks sent to peers.",
		}, labels).With(labelsAndValues...),
		HeadersServed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "headers_served",
			Help:      "Number of headers sent to peers.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Syncing:             discard.NewGauge(),
		SyncHeight:          discard.NewGauge(),
		TargetHeight:        discard.NewGauge(),
		BlocksSynced:        discard.NewCounter(),
		HeadersSynced:       discard.NewCounter(),
		Reorgs:              discard.NewCounter(),
		BlockValidationTime: discard.NewHistogram(),
		PeerFailures:        discard.NewCounter(),
		BlocksServed:        discard.NewCounter(),
		HeadersServed:       discard.NewCounter(),
	}
}
