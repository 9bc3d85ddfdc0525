// Package worker implements the Delivery Worker (spec.md §4.7): it pulls
// work items off the broker, attempts delivery through the adapter
// registry, and records the outcome in the store, scheduling a retry or
// finalizing the notification's terminal state.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/adapter"
	"github.com/bryonbaker/relay/internal/broker"
	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/models"
	"github.com/bryonbaker/relay/internal/retry"
	"github.com/bryonbaker/relay/internal/store"
)

// Config controls the worker pool.
type Config struct {
	Concurrency   int
	MaxRetryCount int
	PollTimeout   time.Duration
}

// Worker pulls notification ids off a broker and drives them through
// delivery to a terminal or retry-scheduled state.
type Worker struct {
	store    store.Store
	broker   broker.Broker
	registry *adapter.Registry
	delay    *retry.Calculator
	cfg      Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New creates a Worker with the given dependencies.
func New(s store.Store, b broker.Broker, registry *adapter.Registry, delay *retry.Calculator, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Worker {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{store: s, broker: b, registry: registry, delay: delay, cfg: cfg, metrics: m, logger: logger}
}

// Run starts cfg.Concurrency consumer loops and blocks until ctx is
// cancelled, following the teacher's ticker-driven poll loop shape
// generalized to a blocking broker consumer instead of a ticker.
func (w *Worker) Run(ctx context.Context) {
	done := make(chan struct{}, w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		go func(id int) {
			w.loop(ctx, id)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < w.cfg.Concurrency; i++ {
		<-done
	}
}

func (w *Worker) loop(ctx context.Context, workerID int) {
	w.logger.Info("delivery worker started", zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker stopping", zap.Int("worker_id", workerID))
			return
		default:
		}

		pollCtx, cancel := context.WithTimeout(ctx, w.cfg.PollTimeout)
		item, token, err := w.broker.Consume(pollCtx)
		cancel()
		if err != nil {
			if !errors.Is(err, broker.ErrNoWork) {
				w.logger.Error("broker consume failed", zap.Error(err))
			}
			continue
		}

		w.process(ctx, item, token)
	}
}

// process loads the notification, attempts delivery if it is still
// PENDING, and records the outcome.
func (w *Worker) process(ctx context.Context, item broker.WorkItem, token string) {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.WorkerProcessingDuration.WithLabelValues("process_item").Observe(time.Since(start).Seconds())
		}
	}()

	n, err := w.store.FindByID(ctx, item.NotificationID)
	if err != nil {
		w.logger.Error("failed to load notification for delivery",
			zap.String("notification_id", item.NotificationID), zap.Error(err))
		// Unknown or transient store error: leave it for redelivery.
		if nackErr := w.broker.Nack(ctx, token); nackErr != nil {
			w.logger.Error("failed to nack work item", zap.Error(nackErr))
		}
		return
	}

	if n.Status != models.StatusPending {
		// Already terminal (e.g. cancelled, or a duplicate redelivery of
		// an already-delivered item). Acking here is what makes a
		// delivered message "not re-delivered" (spec.md §8 law).
		w.ack(ctx, token)
		return
	}

	a := w.registry.GetAdapter(n.VendorName)
	if a == nil {
		w.logger.Error("no adapter available for vendor", zap.String("vendor_name", n.VendorName))
		w.markFailed(ctx, n, models.DeliveryAttempt{
			Timestamp:    time.Now().UTC(),
			ErrorMessage: "no adapter registered for vendor",
		}, token, false)
		return
	}

	result := a.Deliver(ctx, n)
	attempt := models.DeliveryAttempt{
		Timestamp:    time.Now().UTC(),
		ResponseCode: result.StatusCode,
		ResponseBody: models.TruncateResponseBody(result.ResponseBody),
		ErrorMessage: result.ErrorMessage,
	}
	retryable := a.IsRetryable(result.StatusCode, result.ResponseBody)

	switch {
	case result.Success:
		w.markDelivered(ctx, n, attempt, token)
	case retryable && n.RetryCount < w.cfg.MaxRetryCount:
		w.scheduleRetry(ctx, n, attempt, token)
	default:
		// retriesExhausted is true only when the result was itself
		// retryable but the retry budget ran out; a non-retryable 4xx or
		// missing adapter never counted against that budget.
		w.markFailed(ctx, n, attempt, token, retryable)
	}
}

func (w *Worker) markDelivered(ctx context.Context, n *models.Notification, attempt models.DeliveryAttempt, token string) {
	_, err := w.store.MarkDelivered(ctx, n.ID, attempt)
	if err != nil && !errors.Is(err, store.ErrStateConflict) {
		w.logger.Error("failed to mark notification delivered", zap.String("notification_id", n.ID), zap.Error(err))
		w.nack(ctx, token)
		return
	}
	if errors.Is(err, store.ErrStateConflict) {
		// Raced with a cancellation; CANCELLED must win (spec.md §8
		// scenario 6, "Cancel races delivery").
		w.logger.Info("delivery succeeded but notification was already cancelled", zap.String("notification_id", n.ID))
	} else {
		w.logger.Info("notification delivered", zap.String("notification_id", n.ID), zap.Int("status_code", attempt.ResponseCode))
	}
	if w.metrics != nil {
		w.metrics.NotificationsSentTotal.WithLabelValues(n.VendorName, "delivered", "success").Inc()
		w.metrics.NotificationAttemptsTotal.WithLabelValues(n.VendorName, "delivered").Observe(float64(len(n.Attempts) + 1))
	}
	w.ack(ctx, token)
}

func (w *Worker) markFailed(ctx context.Context, n *models.Notification, attempt models.DeliveryAttempt, token string, retriesExhausted bool) {
	_, err := w.store.MarkFailed(ctx, n.ID, attempt)
	if err != nil && !errors.Is(err, store.ErrStateConflict) {
		w.logger.Error("failed to mark notification failed", zap.String("notification_id", n.ID), zap.Error(err))
		w.nack(ctx, token)
		return
	}
	w.logger.Warn("notification delivery failed permanently",
		zap.String("notification_id", n.ID), zap.Int("status_code", attempt.ResponseCode))
	if w.metrics != nil {
		w.metrics.NotificationsSentTotal.WithLabelValues(n.VendorName, "failed", "failure").Inc()
		if retriesExhausted {
			w.metrics.NotificationMaxRetriesExceeded.WithLabelValues(n.VendorName, "failed").Inc()
		}
		w.metrics.NotificationAttemptsTotal.WithLabelValues(n.VendorName, "failed").Observe(float64(len(n.Attempts) + 1))
	}
	w.ack(ctx, token)
}

func (w *Worker) scheduleRetry(ctx context.Context, n *models.Notification, attempt models.DeliveryAttempt, token string) {
	delay, err := w.delay.CalculateDelay(n.RetryCount)
	if err != nil {
		w.logger.Error("failed to calculate retry delay", zap.Error(err))
		delay = time.Second
	}
	nextRetryAt := time.Now().UTC().Add(delay)

	updated, err := w.store.ScheduleRetry(ctx, n.ID, attempt, nextRetryAt)
	if err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			w.logger.Info("retry skipped, notification no longer pending", zap.String("notification_id", n.ID))
			w.ack(ctx, token)
			return
		}
		w.logger.Error("failed to schedule retry", zap.String("notification_id", n.ID), zap.Error(err))
		w.nack(ctx, token)
		return
	}

	if err := w.broker.PublishWithDelay(ctx, n.ID, updated.RetryCount, delay); err != nil {
		w.logger.Error("failed to publish delayed retry", zap.String("notification_id", n.ID), zap.Error(err))
	}

	w.logger.Warn("notification delivery failed, retry scheduled",
		zap.String("notification_id", n.ID),
		zap.Int("retry_count", updated.RetryCount),
		zap.Duration("delay", delay),
	)
	if w.metrics != nil {
		w.metrics.NotificationRetryBackoff.WithLabelValues(n.VendorName).Observe(delay.Seconds())
	}
	w.ack(ctx, token)
}

func (w *Worker) ack(ctx context.Context, token string) {
	if err := w.broker.Ack(ctx, token); err != nil {
		w.logger.Error("failed to ack work item", zap.Error(err))
	}
}

func (w *Worker) nack(ctx context.Context, token string) {
	if err := w.broker.Nack(ctx, token); err != nil {
		w.logger.Error("failed to nack work item", zap.Error(err))
	}
}
