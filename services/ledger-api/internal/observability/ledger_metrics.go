package observability

import (
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg/money"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_engine",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome (ok or error code)",
		},
		[]string{"operation", "outcome"},
	)

	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger_engine",
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger operations including lock wait and commit",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	LockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ledger_engine",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for account locks",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)

	FeesCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_engine",
			Name:      "fees_collected_total",
			Help:      "Sum of transfer fees retained, in major units",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_engine",
			Name:      "events_published_total",
			Help:      "Ledger events handed to the broker by outcome",
		},
		[]string{"event", "outcome"},
	)
)

// LedgerMetrics feeds engine observations into the package collectors.
type LedgerMetrics struct{}

func (LedgerMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
	OperationLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (LedgerMetrics) ObserveLockWait(wait time.Duration) {
	LockWait.Observe(wait.Seconds())
}

func (LedgerMetrics) ObserveFee(fee money.Amount) {
	if !fee.IsPositive() {
		return
	}
	f, _ := fee.Decimal().Float64()
	FeesCollected.Add(f)
}
