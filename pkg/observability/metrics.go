package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consolidation_batch_runs_total",
			Help: "Total number of batch consolidation runs by terminal status",
		},
		[]string{"status"},
	)

	batchRunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "consolidation_batch_runs_active",
			Help: "Number of batch consolidation runs currently executing",
		},
	)

	consolidationGroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consolidation_groups_total",
			Help: "Total number of processed client delivery groups by result",
		},
		[]string{"result"},
	)

	invoiceCreationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_invoice_creation_duration_seconds",
			Help:    "Duration of gateway invoice creation calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of received provider webhook events by type and result",
		},
		[]string{"event_type", "result"},
	)
)

// RecordBatchRun records a finished batch run ("completed", "failed", "rejected")
func RecordBatchRun(status string) {
	batchRunsTotal.WithLabelValues(status).Inc()
}

// BatchRunStarted marks a batch run as in flight; call the returned func when done.
func BatchRunStarted() func() {
	batchRunsActive.Inc()
	return batchRunsActive.Dec
}

// RecordConsolidationGroup records one processed group ("ok", "failed")
func RecordConsolidationGroup(result string) {
	consolidationGroupsTotal.WithLabelValues(result).Inc()
}

// ObserveInvoiceCreation records the latency of one gateway invoice call
func ObserveInvoiceCreation(d time.Duration) {
	invoiceCreationDuration.Observe(d.Seconds())
}

// RecordWebhookEvent records one received webhook event
// result: "applied", "ignored", "duplicate", "rejected", "malformed"
func RecordWebhookEvent(eventType, result string) {
	webhookEventsTotal.WithLabelValues(eventType, result).Inc()
}
