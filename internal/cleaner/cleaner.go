// Package cleaner implements the periodic cleanup loop that removes
// terminal notification records (DELIVERED, FAILED, CANCELLED) past their
// retention window, preventing unbounded growth of the notifications
// table.
package cleaner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/store"
)

// Config controls the retention cleaner loop.
type Config struct {
	Enabled         bool
	CleanupInterval time.Duration
	RetentionPeriod time.Duration
}

// Cleaner periodically removes terminal notifications whose last update is
// older than the configured retention period.
type Cleaner struct {
	store   store.Store
	cfg     Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a new Cleaner with the provided dependencies.
func New(s store.Store, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Cleaner {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 30 * 24 * time.Hour
	}
	return &Cleaner{store: s, cfg: cfg, metrics: m, logger: logger}
}

// Start begins the cleanup loop, running at the configured cleanup
// interval. The loop stops when ctx is cancelled.
func (c *Cleaner) Start(ctx context.Context) {
	if !c.cfg.Enabled {
		c.logger.Info("retention cleaner disabled")
		return
	}

	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	c.logger.Info("cleaner started",
		zap.Duration("cleanup_interval", c.cfg.CleanupInterval),
		zap.Duration("retention_period", c.cfg.RetentionPeriod),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cleaner stopping", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			if err := c.Cleanup(ctx); err != nil {
				c.logger.Error("cleanup failed", zap.Error(err))
			}
		}
	}
}

// Cleanup performs a single cleanup pass: it deletes terminal
// notifications older than the retention period, reclaims store space,
// and updates metrics.
func (c *Cleaner) Cleanup(ctx context.Context) error {
	start := time.Now()
	cutoff := time.Now().UTC().Add(-c.cfg.RetentionPeriod)

	deleted, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CleanupRunsTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("deleting records older than cutoff: %w", err)
	}

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.CleanupRecordsDeleted.Add(float64(deleted))
		c.metrics.CleanupDuration.Observe(duration.Seconds())
		c.metrics.CleanupRunsTotal.WithLabelValues("success").Inc()
	}

	if deleted == 0 {
		c.logger.Debug("no records eligible for cleanup", zap.Time("cutoff", cutoff))
		return nil
	}

	c.logger.Info("cleanup completed",
		zap.Int("deleted", deleted),
		zap.Time("cutoff", cutoff),
		zap.Duration("duration", duration),
	)

	if size, err := c.store.DatabaseSizeBytes(ctx); err == nil {
		if c.metrics != nil {
			c.metrics.StoreSizeBytes.Set(float64(size))
		}
	} else {
		c.logger.Warn("failed to read store size after cleanup", zap.Error(err))
	}

	return nil
}
