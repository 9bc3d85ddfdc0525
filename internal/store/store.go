// Package store defines the durable persistence contract for notifications
// (spec.md §4.4) and its SQLite implementation.
//
// Adapted from the teacher's internal/database package: the same
// interface-plus-driver-backed-implementation split, the same
// single-open-connection-plus-WAL approach to correctness under concurrent
// access, and the same testify/mock test double.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bryonbaker/relay/internal/models"
)

// ErrNotFound is returned when a lookup finds no matching record.
var ErrNotFound = errors.New("store: not found")

// ErrStateConflict is returned when a state-mutating operation's
// precondition on the current status is not satisfied (e.g. cancelling a
// notification that is no longer PENDING).
var ErrStateConflict = errors.New("store: state conflict")

// Store defines the contract for durable persistence of notifications.
// Implementations must be safe for concurrent use by multiple goroutines
// and must guard every state transition with a precondition on the
// notification's current status (spec.md §5 "Cancellation").
type Store interface {
	Close() error
	Ping() error

	// Insert persists a new notification in PENDING status with
	// RetryCount=0 and no attempts, assigning ID, CreatedAt and UpdatedAt.
	// If n.IdempotencyKey is non-empty and already resolves to an existing
	// record, Insert returns that existing record instead of creating a
	// new one (spec.md §3 invariant 4, §4.6 "create").
	Insert(ctx context.Context, n *models.Notification) (*models.Notification, error)

	FindByID(ctx context.Context, id string) (*models.Notification, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Notification, error)
	FindByStatus(ctx context.Context, status string) ([]*models.Notification, error)
	FindByVendorNameAndStatus(ctx context.Context, vendorName, status string) ([]*models.Notification, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	CountByVendorNameAndStatus(ctx context.Context, vendorName, status string) (int, error)

	// FindByStatusAndNextRetryAtBefore returns PENDING notifications whose
	// NextRetryAt is due on or before t (spec.md §4.4, index-backed).
	FindByStatusAndNextRetryAtBefore(ctx context.Context, status string, t time.Time) ([]*models.Notification, error)

	// MarkDelivered appends attempt and transitions id to DELIVERED,
	// clearing NextRetryAt. The transition only applies if the current
	// status is still PENDING; otherwise ErrStateConflict is returned
	// (spec.md §5 "Cancellation").
	MarkDelivered(ctx context.Context, id string, attempt models.DeliveryAttempt) (*models.Notification, error)

	// MarkFailed appends attempt and transitions id to FAILED, clearing
	// NextRetryAt. Same PENDING precondition as MarkDelivered.
	MarkFailed(ctx context.Context, id string, attempt models.DeliveryAttempt) (*models.Notification, error)

	// ScheduleRetry appends attempt, increments RetryCount, and sets
	// NextRetryAt, keeping status PENDING. Same PENDING precondition.
	ScheduleRetry(ctx context.Context, id string, attempt models.DeliveryAttempt, nextRetryAt time.Time) (*models.Notification, error)

	// CancelNotification transitions id from PENDING to CANCELLED. Returns
	// ErrStateConflict if the current status is not PENDING.
	CancelNotification(ctx context.Context, id string) (*models.Notification, error)

	// ResetForRetry transitions id from FAILED to PENDING with
	// RetryCount=0 and a cleared NextRetryAt. Returns ErrStateConflict if
	// the current status is not FAILED.
	ResetForRetry(ctx context.Context, id string) (*models.Notification, error)

	// DeleteOlderThan permanently removes terminal (non-PENDING)
	// notifications last updated before cutoff. Used by the retention
	// cleaner, not by the core delivery pipeline (spec.md §3 "Records are
	// not deleted" governs the notification lifecycle API; this is an
	// operator-configured janitor).
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// DatabaseSizeBytes reports the current on-disk size of the store.
	DatabaseSizeBytes(ctx context.Context) (int64, error)
}
