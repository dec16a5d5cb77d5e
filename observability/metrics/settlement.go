package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics tracks lifecycle transitions and rejected operations.
type EscrowMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	deposits    *prometheus.CounterVec
	expirySweep prometheus.Counter
}

// MonetaryMetrics tracks amount validation failures.
type MonetaryMetrics struct {
	rejections *prometheus.CounterVec
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics

	monetaryOnce     sync.Once
	monetaryRegistry *MonetaryMetrics
)

// Escrow returns the lazily registered escrow lifecycle metrics.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlement",
				Subsystem: "escrow",
				Name:      "transitions_total",
				Help:      "Escrow state transitions segmented by source and target state.",
			}, []string{"from", "to"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlement",
				Subsystem: "escrow",
				Name:      "rejections_total",
				Help:      "Escrow operations rejected, segmented by operation and error kind.",
			}, []string{"operation", "kind"}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlement",
				Subsystem: "escrow",
				Name:      "deposited_base_units_total",
				Help:      "Base units deposited into escrows per currency.",
			}, []string{"currency"}),
			expirySweep: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "settlement",
				Subsystem: "escrow",
				Name:      "expired_total",
				Help:      "Escrows moved to expired by the sweep.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.transitions,
			escrowRegistry.rejections,
			escrowRegistry.deposits,
			escrowRegistry.expirySweep,
		)
	})
	return escrowRegistry
}

// Monetary returns the lazily registered monetary metrics.
func Monetary() *MonetaryMetrics {
	monetaryOnce.Do(func() {
		monetaryRegistry = &MonetaryMetrics{
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "settlement",
				Subsystem: "monetary",
				Name:      "validation_rejections_total",
				Help:      "Escrow amount validations rejected per currency and reason.",
			}, []string{"currency", "kind"}),
		}
		prometheus.MustRegister(monetaryRegistry.rejections)
	})
	return monetaryRegistry
}

func label(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}

// RecordTransition counts a state change.
func (m *EscrowMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(label(from), label(to)).Inc()
}

// RecordRejection counts a refused operation.
func (m *EscrowMetrics) RecordRejection(operation, kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(label(operation), label(kind)).Inc()
}

// RecordDeposit adds a funding amount. Values beyond float64 precision are
// approximated; the counter is a volume signal, not a ledger.
func (m *EscrowMetrics) RecordDeposit(currency string, baseUnits float64) {
	if m == nil || baseUnits <= 0 {
		return
	}
	m.deposits.WithLabelValues(label(currency)).Add(baseUnits)
}

// RecordExpired counts escrows transitioned by one sweep.
func (m *EscrowMetrics) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expirySweep.Add(float64(n))
}

// TransitionCounter exposes the transition vector for assertions.
func (m *EscrowMetrics) TransitionCounter() *prometheus.CounterVec { return m.transitions }

// RejectionCounter exposes the rejection vector for assertions.
func (m *EscrowMetrics) RejectionCounter() *prometheus.CounterVec { return m.rejections }

// DepositCounter exposes the deposit vector for assertions.
func (m *EscrowMetrics) DepositCounter() *prometheus.CounterVec { return m.deposits }

// ExpiredCounter exposes the sweep counter for assertions.
func (m *EscrowMetrics) ExpiredCounter() prometheus.Counter { return m.expirySweep }

// RecordRejection counts a failed amount validation.
func (m *MonetaryMetrics) RecordRejection(currency, kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(label(currency), label(kind)).Inc()
}

// RejectionCounter exposes the rejection vector for assertions.
func (m *MonetaryMetrics) RejectionCounter() *prometheus.CounterVec { return m.rejections }
