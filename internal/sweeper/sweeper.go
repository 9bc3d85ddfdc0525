// Package sweeper implements the periodic safety-net scan (spec.md §4.8)
// that republishes PENDING notifications whose NextRetryAt is due but
// which, for whatever reason (a lost broker message, a promoter restart),
// never reached a worker. Its loop shape is adapted from the teacher's
// internal/reconciler ticker-driven periodic pass.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/broker"
	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/models"
	"github.com/bryonbaker/relay/internal/store"
)

// Config controls the sweeper loop.
type Config struct {
	Enabled   bool
	Interval  time.Duration
	OnStartup bool
}

// Sweeper periodically republishes due PENDING notifications that the
// broker's own delayed-delivery promoter may have missed, and is the
// store-driven second line of defense against lost broker messages.
type Sweeper struct {
	store   store.Store
	broker  broker.Broker
	cfg     Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a Sweeper with the given dependencies.
func New(s store.Store, b broker.Broker, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Sweeper{store: s, broker: b, cfg: cfg, metrics: m, logger: logger}
}

// Start begins the sweep loop. If cfg.OnStartup is true, an initial sweep
// runs immediately. The loop stops when ctx is cancelled.
func (sw *Sweeper) Start(ctx context.Context) {
	if !sw.cfg.Enabled {
		sw.logger.Info("sweeper disabled")
		return
	}

	sw.logger.Info("sweeper started",
		zap.Duration("interval", sw.cfg.Interval),
		zap.Bool("on_startup", sw.cfg.OnStartup),
	)

	if sw.cfg.OnStartup {
		if err := sw.Sweep(ctx); err != nil {
			sw.logger.Error("startup sweep failed", zap.Error(err))
		}
	}

	ticker := time.NewTicker(sw.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("sweeper stopping", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			if err := sw.Sweep(ctx); err != nil {
				sw.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep performs a single pass: it finds PENDING notifications whose
// NextRetryAt has elapsed and republishes each to the broker. Republishing
// a notification the broker has already queued is a benign duplicate
// (spec.md §9 Open Question "Sweeper duplicate republish"); the worker's
// PENDING precondition check and acked-on-first-success semantics make the
// redelivery a no-op.
func (sw *Sweeper) Sweep(ctx context.Context) error {
	start := time.Now()

	due, err := sw.store.FindByStatusAndNextRetryAtBefore(ctx, models.StatusPending, time.Now())
	if err != nil {
		if sw.metrics != nil {
			sw.metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	republished := 0
	for _, n := range due {
		select {
		case <-ctx.Done():
			sw.logger.Info("sweep interrupted by context cancellation", zap.Int("republished_so_far", republished))
			return ctx.Err()
		default:
		}

		if err := sw.broker.Publish(ctx, n.ID); err != nil {
			sw.logger.Error("failed to republish due notification",
				zap.String("notification_id", n.ID), zap.Error(err))
			continue
		}
		republished++
	}

	duration := time.Since(start)
	sw.logger.Info("sweep completed",
		zap.Int("due", len(due)),
		zap.Int("republished", republished),
		zap.Duration("duration", duration),
	)

	if sw.metrics != nil {
		sw.metrics.SweepRunsTotal.WithLabelValues("success").Inc()
		sw.metrics.SweepRepublishedTotal.Add(float64(republished))
	}

	return nil
}
