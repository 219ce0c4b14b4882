// Package metrics provides Prometheus instrumentation for settlement and reads.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UserOperationsSubmitted counts user operations accepted by the bundler, by kind.
	UserOperationsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demeter_user_operations_submitted_total",
		Help: "User operations accepted by the bundler",
	}, []string{"kind"})

	// SettlementOutcomes counts how awaited operations ended.
	SettlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demeter_settlement_outcomes_total",
		Help: "Settlement results by kind and outcome (confirmed, failed, timeout, cancelled)",
	}, []string{"kind", "outcome"})

	// SettlementLatency tracks submission-to-receipt time.
	SettlementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "demeter_settlement_latency_seconds",
		Help:    "Time from submission until a receipt was observed",
		Buckets: []float64{1, 2, 4, 8, 15, 30, 60, 120, 180, 300},
	}, []string{"kind"})

	// ReceiptPolls counts eth_getUserOperationReceipt polls.
	ReceiptPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demeter_receipt_polls_total",
		Help: "Receipt polls issued against the bundler",
	})

	// RegistryReadDuration tracks full farm-registry reads.
	RegistryReadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "demeter_registry_read_duration_seconds",
		Help:    "Duration of a complete farm registry read",
		Buckets: prometheus.DefBuckets,
	})

	// RegistryReadErrors counts failed registry reads.
	RegistryReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demeter_registry_read_errors_total",
		Help: "Farm registry reads that failed",
	})

	// HistoryDegraded counts history loads that fell back to an empty list.
	HistoryDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demeter_history_degraded_total",
		Help: "Transaction history loads that degraded to an empty list",
	})

	// CacheLookups counts farm cache lookups by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demeter_farm_cache_lookups_total",
		Help: "Farm cache lookups by result",
	}, []string{"result"})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
