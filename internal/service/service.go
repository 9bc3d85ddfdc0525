// Package service implements the notification business operations used by
// the HTTP API (spec.md §4.6), wrapping a store.Store and a broker.Broker.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/broker"
	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/models"
	"github.com/bryonbaker/relay/internal/store"
)

// Sentinel errors surfaced to callers, matching the error taxonomy of
// spec.md §7 (ValidationError, NotFound, StateConflict).
var (
	ErrValidation    = errors.New("service: validation failed")
	ErrNotFound      = store.ErrNotFound
	ErrStateConflict = store.ErrStateConflict
)

// Service implements the Notification Service (spec.md §4.6): validated
// creation, lookup, and the operator-facing retry/cancel operations.
// Creation and retry publish to the broker; cancel only updates the store.
type Service struct {
	store   store.Store
	broker  broker.Broker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a Service over the given store and broker. m may be nil, in
// which case metrics are skipped (used by tests that don't care about
// them).
func New(s store.Store, b broker.Broker, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{store: s, broker: b, metrics: m, logger: logger}
}

// CreateInput carries the fields accepted when creating a notification.
type CreateInput struct {
	VendorName     string
	TargetURL      string
	HTTPMethod     string
	Headers        map[string]string
	Body           string
	IdempotencyKey string
}

// Create validates and persists a new notification, then publishes it to
// the broker for immediate delivery. If idempotencyKey matches an existing
// record, that record is returned and the broker is not re-published to
// (spec.md §3 invariant 4, §8 scenario 5).
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Notification, error) {
	if in.VendorName == "" {
		return nil, fmt.Errorf("%w: vendorName is required", ErrValidation)
	}
	if !validTargetURL(in.TargetURL) {
		return nil, fmt.Errorf("%w: targetUrl must be a valid http(s) URL", ErrValidation)
	}
	if !models.ValidHTTPMethod(in.HTTPMethod) {
		return nil, fmt.Errorf("%w: httpMethod must be one of GET, POST, PUT, PATCH, DELETE", ErrValidation)
	}

	n := &models.Notification{
		VendorName:     in.VendorName,
		TargetURL:      in.TargetURL,
		HTTPMethod:     in.HTTPMethod,
		Headers:        in.Headers,
		Body:           in.Body,
		IdempotencyKey: in.IdempotencyKey,
	}

	saved, err := s.store.Insert(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("persisting notification: %w", err)
	}

	// Only publish when this call created the record. Insert assigns the new
	// ID to n; an idempotency-key hit returns the pre-existing record, which
	// the creating call publishes, so its ID differs from n.ID.
	if in.IdempotencyKey == "" || saved.ID == n.ID {
		if err := s.broker.Publish(ctx, saved.ID); err != nil {
			s.logger.Error("failed to publish new notification",
				zap.String("notification_id", saved.ID), zap.Error(err))
			return nil, fmt.Errorf("publishing notification: %w", err)
		}
		if s.metrics != nil {
			s.metrics.NotificationsCreatedTotal.WithLabelValues(saved.VendorName).Inc()
		}
	}

	return saved, nil
}

func validTargetURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Get retrieves a notification by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Notification, error) {
	return s.store.FindByID(ctx, id)
}

// ListFailed returns FAILED notifications, optionally filtered by vendor.
func (s *Service) ListFailed(ctx context.Context, vendorName string) ([]*models.Notification, error) {
	if vendorName != "" {
		return s.store.FindByVendorNameAndStatus(ctx, vendorName, models.StatusFailed)
	}
	return s.store.FindByStatus(ctx, models.StatusFailed)
}

// Retry resets a FAILED notification to PENDING with a zeroed retry count
// and republishes it to the broker (spec.md §8 scenario 7, "Operator
// reset"). Returns ErrStateConflict if the notification is not FAILED.
func (s *Service) Retry(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.store.ResetForRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.broker.Publish(ctx, n.ID); err != nil {
		s.logger.Error("failed to republish retried notification",
			zap.String("notification_id", n.ID), zap.Error(err))
		return nil, fmt.Errorf("publishing retried notification: %w", err)
	}
	return n, nil
}

// Cancel marks a PENDING notification CANCELLED. Returns ErrStateConflict
// if the notification is not PENDING; the cooperative-cancellation
// semantics (an in-flight delivery must not overwrite CANCELLED) are
// enforced by the store's precondition-guarded transitions, not here
// (spec.md §5 "Cancellation").
func (s *Service) Cancel(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.store.CancelNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.NotificationCancelledTotal.WithLabelValues(n.VendorName).Inc()
	}
	return n, nil
}
