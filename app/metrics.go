package app

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "sequencer"

// Metrics contains metrics exposed by the block pipeline.
type Metrics struct {
	// Number of transactions delivered.
	TxsDelivered metrics.Counter
	// Number of actions that failed and produced a failure receipt.
	ActionsFailed metrics.Counter
	// Number of fills produced by the matching engine.
	OrdersMatched metrics.Counter
	// Number of orders resting on all books.
	OrdersResting metrics.Gauge
	// Height of the last committed block.
	CommittedHeight metrics.Gauge
}

// PrometheusMetrics returns Metrics built using the Prometheus client
// library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		TxsDelivered: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "txs_delivered",
			Help:      "Number of transactions delivered.",
		}, []string{}),
		ActionsFailed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "actions_failed",
			Help:      "Number of actions that failed with a receipt.",
		}, []string{}),
		OrdersMatched: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders_matched",
			Help:      "Number of fills produced by the matching engine.",
		}, []string{}),
		OrdersResting: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders_resting",
			Help:      "Number of orders resting on all books.",
		}, []string{}),
		CommittedHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "committed_height",
			Help:      "Height of the last committed block.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		TxsDelivered:    discard.NewCounter(),
		ActionsFailed:   discard.NewCounter(),
		OrdersMatched:   discard.NewCounter(),
		OrdersResting:   discard.NewGauge(),
		CommittedHeight: discard.NewGauge(),
	}
}
