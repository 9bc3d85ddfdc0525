// Package storage implements the operational monitor: a periodic check of
// filesystem usage backing the notification store and of the broker's
// queue depths, updating Prometheus metrics and logging warnings when
// configurable thresholds are exceeded.
package storage

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/store"
)

// DepthReporter is implemented by brokers that can report their current
// queue depths. RedisBroker satisfies this.
type DepthReporter interface {
	QueueDepth(ctx context.Context) (int64, error)
	DelayedDepth(ctx context.Context) (int64, error)
}

// Config controls the operational monitor loop.
type Config struct {
	Interval          time.Duration
	VolumePath        string
	WarningThreshold  float64
	CriticalThreshold float64
}

// Monitor periodically inspects the storage volume backing the
// notification store and the broker's queue depths, reporting usage
// metrics and detecting storage pressure.
type Monitor struct {
	store   store.Store
	depths  DepthReporter
	cfg     Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a new Monitor with the provided dependencies. depths may be
// nil if the broker does not support depth reporting.
func New(s store.Store, depths DepthReporter, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.VolumePath == "" {
		cfg.VolumePath = "."
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 80
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = 95
	}
	return &Monitor{store: s, depths: depths, cfg: cfg, metrics: m, logger: logger}
}

// Start begins the monitoring loop, running at the configured interval.
// The loop stops when ctx is cancelled.
func (mon *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(mon.cfg.Interval)
	defer ticker.Stop()

	mon.logger.Info("storage monitor started",
		zap.Duration("interval", mon.cfg.Interval),
		zap.String("volume_path", mon.cfg.VolumePath),
		zap.Float64("warning_threshold", mon.cfg.WarningThreshold),
		zap.Float64("critical_threshold", mon.cfg.CriticalThreshold),
	)

	for {
		select {
		case <-ctx.Done():
			mon.logger.Info("storage monitor stopping", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			if err := mon.Check(ctx); err != nil {
				mon.logger.Error("storage check failed", zap.Error(err))
			}
		}
	}
}

// Check performs a single storage check: filesystem usage via
// syscall.Statfs, the notification store's on-disk size, and the broker's
// queue depths.
func (mon *Monitor) Check(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(mon.cfg.VolumePath, &stat); err != nil {
		return fmt.Errorf("statfs on %s: %w", mon.cfg.VolumePath, err)
	}

	blockSize := uint64(stat.Bsize)
	totalBytes := stat.Blocks * blockSize
	availableBytes := stat.Bavail * blockSize
	usedBytes := totalBytes - (stat.Bfree * blockSize)

	var usagePercent float64
	if totalBytes > 0 {
		usagePercent = (float64(usedBytes) / float64(totalBytes)) * 100.0
	}

	if mon.metrics != nil {
		mon.metrics.StorageVolumeSizeBytes.Set(float64(totalBytes))
		mon.metrics.StorageVolumeUsedBytes.Set(float64(usedBytes))
		mon.metrics.StorageVolumeAvailableBytes.Set(float64(availableBytes))
		mon.metrics.StorageVolumeUsagePercent.Set(usagePercent)
	}

	if dbSize, err := mon.store.DatabaseSizeBytes(ctx); err != nil {
		mon.logger.Error("failed to get database size", zap.Error(err))
	} else if mon.metrics != nil {
		mon.metrics.StoreSizeBytes.Set(float64(dbSize))
	}

	if mon.depths != nil {
		if depth, err := mon.depths.QueueDepth(ctx); err != nil {
			mon.logger.Warn("failed to get queue depth", zap.Error(err))
		} else if mon.metrics != nil {
			mon.metrics.QueueDepth.WithLabelValues("default").Set(float64(depth))
		}

		if delayed, err := mon.depths.DelayedDepth(ctx); err != nil {
			mon.logger.Warn("failed to get delayed queue depth", zap.Error(err))
		} else if mon.metrics != nil {
			mon.metrics.DelayedQueueDepth.WithLabelValues("default").Set(float64(delayed))
		}
	}

	mon.evaluatePressure(usagePercent)

	mon.logger.Debug("storage check completed",
		zap.Float64("usage_percent", usagePercent),
		zap.Uint64("total_bytes", totalBytes),
		zap.Uint64("used_bytes", usedBytes),
		zap.Uint64("available_bytes", availableBytes),
	)

	return nil
}

func (mon *Monitor) evaluatePressure(usagePercent float64) {
	if mon.metrics == nil {
		return
	}

	mon.metrics.StoragePressure.WithLabelValues("none").Set(0)
	mon.metrics.StoragePressure.WithLabelValues("warning").Set(0)
	mon.metrics.StoragePressure.WithLabelValues("critical").Set(0)

	switch {
	case usagePercent >= mon.cfg.CriticalThreshold:
		mon.metrics.StoragePressure.WithLabelValues("critical").Set(1)
		mon.logger.Error("CRITICAL: storage usage exceeds critical threshold",
			zap.Float64("usage_percent", usagePercent),
			zap.Float64("critical_threshold", mon.cfg.CriticalThreshold),
		)
	case usagePercent >= mon.cfg.WarningThreshold:
		mon.metrics.StoragePressure.WithLabelValues("warning").Set(1)
		mon.logger.Warn("storage usage exceeds warning threshold",
			zap.Float64("usage_percent", usagePercent),
			zap.Float64("warning_threshold", mon.cfg.WarningThreshold),
		)
	default:
		mon.metrics.StoragePressure.WithLabelValues("none").Set(1)
	}
}
