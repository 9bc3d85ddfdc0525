package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		m := New(reg)
		require.NotNil(t, m)
	})
}

func TestMetricsCanBeIncremented(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.NotificationsCreatedTotal.WithLabelValues("generic").Inc()
	m.NotificationsSentTotal.WithLabelValues("generic", "delivered", "success").Inc()
	m.NotificationsPendingTotal.WithLabelValues("generic").Set(5)
	m.NotificationDeliveryDuration.WithLabelValues("generic").Observe(0.25)
	m.NotificationAttemptsTotal.WithLabelValues("generic", "delivered").Observe(2)
	m.NotificationRetryBackoff.WithLabelValues("generic").Observe(1.5)
	m.NotificationMaxRetriesExceeded.WithLabelValues("generic", "failed").Inc()
	m.NotificationCancelledTotal.WithLabelValues("generic").Inc()

	m.QueueDepth.WithLabelValues("default").Set(3)
	m.DelayedQueueDepth.WithLabelValues("default").Set(1)

	m.WorkerProcessingDuration.WithLabelValues("process_item").Observe(0.05)

	m.StoreSizeBytes.Set(1048576)
	m.StoreOperationDuration.WithLabelValues("insert").Observe(0.003)
	m.StoreOperationErrors.WithLabelValues("insert").Inc()

	m.StorageVolumeSizeBytes.Set(10737418240)
	m.StorageVolumeUsedBytes.Set(5368709120)
	m.StorageVolumeAvailableBytes.Set(5368709120)
	m.StorageVolumeUsagePercent.Set(50)
	m.StoragePressure.WithLabelValues("warning").Set(1)

	m.SweepRunsTotal.WithLabelValues("success").Inc()
	m.SweepRepublishedTotal.Add(2)

	m.CleanupRunsTotal.WithLabelValues("success").Inc()
	m.CleanupRecordsDeleted.Add(10)
	m.CleanupDuration.Observe(2.3)

	m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/notifications", "202").Inc()
	m.HTTPRequestDuration.WithLabelValues("POST", "/api/v1/notifications").Observe(0.01)

	m.ComponentUp.WithLabelValues("store").Set(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Greater(t, len(families), 0, "expected at least one metric family to be gathered")
}

func TestNoDuplicateRegistration(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		_ = New(reg1)
	})
	assert.NotPanics(t, func() {
		_ = New(reg2)
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = New(reg)

	assert.Panics(t, func() {
		_ = New(reg)
	})
}
