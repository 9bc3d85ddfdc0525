// Package metrics defines and registers all Prometheus metrics used by the
// relay service. Metrics are organised by functional area and share the
// common "relay_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector used by relay.
type Metrics struct {
	// ---------------------------------------------------------------
	// Notification lifecycle
	// ---------------------------------------------------------------

	// NotificationsCreatedTotal counts notifications accepted via the API.
	NotificationsCreatedTotal *prometheus.CounterVec

	// NotificationsSentTotal counts delivery attempts by vendor, outcome,
	// and result (e.g. vendor="generic", outcome="delivered", result="success").
	NotificationsSentTotal *prometheus.CounterVec

	// NotificationsPendingTotal tracks the current number of pending
	// notifications per vendor.
	NotificationsPendingTotal *prometheus.GaugeVec

	// NotificationDeliveryDuration observes the time taken for a single
	// delivery attempt.
	NotificationDeliveryDuration *prometheus.HistogramVec

	// NotificationAttemptsTotal observes how many attempts each terminal
	// notification required.
	NotificationAttemptsTotal *prometheus.HistogramVec

	// NotificationRetryBackoff observes the computed backoff duration per
	// scheduled retry.
	NotificationRetryBackoff *prometheus.HistogramVec

	// NotificationMaxRetriesExceeded counts notifications that exhausted
	// their retry budget and transitioned to FAILED.
	NotificationMaxRetriesExceeded *prometheus.CounterVec

	// NotificationCancelledTotal counts notifications cancelled by an
	// operator.
	NotificationCancelledTotal *prometheus.CounterVec

	// ---------------------------------------------------------------
	// Broker
	// ---------------------------------------------------------------

	// QueueDepth tracks the number of items ready for immediate delivery.
	QueueDepth *prometheus.GaugeVec

	// DelayedQueueDepth tracks the number of items waiting in the delayed
	// (retry) set.
	DelayedQueueDepth *prometheus.GaugeVec

	// ---------------------------------------------------------------
	// Worker
	// ---------------------------------------------------------------

	// WorkerProcessingDuration observes how long the worker takes to
	// process one work item end-to-end.
	WorkerProcessingDuration *prometheus.HistogramVec

	// ---------------------------------------------------------------
	// Store
	// ---------------------------------------------------------------

	// StoreSizeBytes tracks the on-disk size of the notification store.
	StoreSizeBytes prometheus.Gauge

	// StoreOperationDuration observes store operation latencies.
	StoreOperationDuration *prometheus.HistogramVec

	// StoreOperationErrors counts store operation errors.
	StoreOperationErrors *prometheus.CounterVec

	// ---------------------------------------------------------------
	// Storage volume (operational monitor)
	// ---------------------------------------------------------------

	// StorageVolumeSizeBytes is the total size of the filesystem backing
	// the store's data directory.
	StorageVolumeSizeBytes prometheus.Gauge

	// StorageVolumeUsedBytes is the used space on that filesystem.
	StorageVolumeUsedBytes prometheus.Gauge

	// StorageVolumeAvailableBytes is the space available to the process
	// on that filesystem.
	StorageVolumeAvailableBytes prometheus.Gauge

	// StorageVolumeUsagePercent is used/total as a percentage.
	StorageVolumeUsagePercent prometheus.Gauge

	// StoragePressure is 1 for the currently active pressure level
	// ("none", "warning", "critical") and 0 for the others.
	StoragePressure *prometheus.GaugeVec

	// ---------------------------------------------------------------
	// Sweeper
	// ---------------------------------------------------------------

	// SweepRunsTotal counts sweeper passes by status.
	SweepRunsTotal *prometheus.CounterVec

	// SweepRepublishedTotal counts due PENDING notifications republished by
	// the sweeper, whether or not the broker still held a message for them.
	SweepRepublishedTotal prometheus.Counter

	// ---------------------------------------------------------------
	// Retention cleaner
	// ---------------------------------------------------------------

	// CleanupRunsTotal counts retention cleanup runs by status.
	CleanupRunsTotal *prometheus.CounterVec

	// CleanupRecordsDeleted counts total records deleted by the cleaner.
	CleanupRecordsDeleted prometheus.Counter

	// CleanupDuration observes how long each cleanup run takes.
	CleanupDuration prometheus.Histogram

	// ---------------------------------------------------------------
	// HTTP API
	// ---------------------------------------------------------------

	// HTTPRequestsTotal counts API requests by method, path, and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes API request latencies.
	HTTPRequestDuration *prometheus.HistogramVec

	// ---------------------------------------------------------------
	// Component health
	// ---------------------------------------------------------------

	// ComponentUp indicates whether a component is healthy (1) or not (0).
	ComponentUp *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics with the supplied
// registerer. Callers should pass a private prometheus.NewRegistry(), not
// prometheus.DefaultRegisterer, so tests can construct isolated instances.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{}

	m.NotificationsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_notifications_created_total",
		Help: "Total notifications accepted via the API.",
	}, []string{"vendor_name"})
	registerer.MustRegister(m.NotificationsCreatedTotal)

	m.NotificationsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_notifications_sent_total",
		Help: "Total delivery attempts by vendor, outcome, and result.",
	}, []string{"vendor_name", "outcome", "result"})
	registerer.MustRegister(m.NotificationsSentTotal)

	m.NotificationsPendingTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_notifications_pending_total",
		Help: "Current number of pending notifications per vendor.",
	}, []string{"vendor_name"})
	registerer.MustRegister(m.NotificationsPendingTotal)

	m.NotificationDeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_notification_delivery_duration_seconds",
		Help:    "Time taken for a single delivery attempt.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	}, []string{"vendor_name"})
	registerer.MustRegister(m.NotificationDeliveryDuration)

	m.NotificationAttemptsTotal = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_notification_attempts_total",
		Help:    "Number of attempts required per terminal notification.",
		Buckets: []float64{1, 2, 3, 5, 10, 15, 20},
	}, []string{"vendor_name", "outcome"})
	registerer.MustRegister(m.NotificationAttemptsTotal)

	m.NotificationRetryBackoff = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_notification_retry_backoff_seconds",
		Help:    "Computed backoff duration per scheduled retry.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"vendor_name"})
	registerer.MustRegister(m.NotificationRetryBackoff)

	m.NotificationMaxRetriesExceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_notification_max_retries_exceeded_total",
		Help: "Notifications that exhausted their retry budget.",
	}, []string{"vendor_name", "outcome"})
	registerer.MustRegister(m.NotificationMaxRetriesExceeded)

	m.NotificationCancelledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_notification_cancelled_total",
		Help: "Notifications cancelled by an operator.",
	}, []string{"vendor_name"})
	registerer.MustRegister(m.NotificationCancelledTotal)

	m.QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_queue_depth",
		Help: "Number of items ready for immediate delivery.",
	}, []string{"queue"})
	registerer.MustRegister(m.QueueDepth)

	m.DelayedQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_delayed_queue_depth",
		Help: "Number of items waiting in the delayed retry set.",
	}, []string{"queue"})
	registerer.MustRegister(m.DelayedQueueDepth)

	m.WorkerProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_worker_processing_duration_seconds",
		Help:    "Time taken by a worker to process one work item end-to-end.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0},
	}, []string{"stage"})
	registerer.MustRegister(m.WorkerProcessingDuration)

	m.StoreSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_store_size_bytes",
		Help: "On-disk size of the notification store.",
	})
	registerer.MustRegister(m.StoreSizeBytes)

	m.StoreOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_store_operation_duration_seconds",
		Help:    "Duration of store operations.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"operation"})
	registerer.MustRegister(m.StoreOperationDuration)

	m.StoreOperationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_store_operation_errors_total",
		Help: "Store operation errors.",
	}, []string{"operation"})
	registerer.MustRegister(m.StoreOperationErrors)

	m.StorageVolumeSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_storage_volume_size_bytes",
		Help: "Total size of the filesystem backing the store's data directory.",
	})
	registerer.MustRegister(m.StorageVolumeSizeBytes)

	m.StorageVolumeUsedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_storage_volume_used_bytes",
		Help: "Used space on the filesystem backing the store's data directory.",
	})
	registerer.MustRegister(m.StorageVolumeUsedBytes)

	m.StorageVolumeAvailableBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_storage_volume_available_bytes",
		Help: "Space available to the process on the filesystem backing the store's data directory.",
	})
	registerer.MustRegister(m.StorageVolumeAvailableBytes)

	m.StorageVolumeUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_storage_volume_usage_percent",
		Help: "Filesystem usage percentage for the store's data directory.",
	})
	registerer.MustRegister(m.StorageVolumeUsagePercent)

	m.StoragePressure = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_storage_pressure",
		Help: "Active storage pressure level: none, warning, or critical.",
	}, []string{"level"})
	registerer.MustRegister(m.StoragePressure)

	m.SweepRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_sweep_runs_total",
		Help: "Total sweeper passes by status.",
	}, []string{"status"})
	registerer.MustRegister(m.SweepRunsTotal)

	m.SweepRepublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_sweep_republished_total",
		Help: "Total notifications republished by the sweeper.",
	})
	registerer.MustRegister(m.SweepRepublishedTotal)

	m.CleanupRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_cleanup_runs_total",
		Help: "Total retention cleanup runs by status.",
	}, []string{"status"})
	registerer.MustRegister(m.CleanupRunsTotal)

	m.CleanupRecordsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_cleanup_records_deleted_total",
		Help: "Total number of records deleted by the retention cleaner.",
	})
	registerer.MustRegister(m.CleanupRecordsDeleted)

	m.CleanupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_cleanup_duration_seconds",
		Help:    "Duration of each retention cleanup run.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})
	registerer.MustRegister(m.CleanupDuration)

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_http_requests_total",
		Help: "Total API requests by method, path, and status.",
	}, []string{"method", "path", "status"})
	registerer.MustRegister(m.HTTPRequestsTotal)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_http_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"method", "path"})
	registerer.MustRegister(m.HTTPRequestDuration)

	m.ComponentUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_component_up",
		Help: "Whether a component is healthy (1) or not (0).",
	}, []string{"component"})
	registerer.MustRegister(m.ComponentUp)

	return m
}
