// Package broker defines the work-queue contract used to hand notification
// ids from producers (the API layer, the sweeper) to delivery workers
// (spec.md §4.5), and its Redis-backed implementation.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrNoWork is returned by Consume when no item became available before ctx
// was cancelled or the poll timeout elapsed.
var ErrNoWork = errors.New("broker: no work available")

// WorkItem is the unit of work handed to a delivery worker. RetryCount here
// is advisory only: per spec.md §4.7 the worker always trusts the
// notification record in the store over the value carried on the queue
// item, since the broker offers at-least-once (not exactly-once) delivery
// and a duplicate redelivery may carry a stale RetryCount.
type WorkItem struct {
	NotificationID string
	RetryCount     int
}

// Broker is the durable work-queue contract. Implementations must support
// at-least-once delivery: a consumed item is not permanently removed until
// Ack is called, and an item whose consumer crashes or never acks becomes
// available again after a visibility timeout.
type Broker interface {
	// Publish enqueues notificationID for immediate delivery.
	Publish(ctx context.Context, notificationID string) error

	// PublishWithDelay enqueues notificationID to become available for
	// delivery no earlier than delay from now, carrying retryCount for
	// observability (spec.md §4.5 "delayed visibility").
	PublishWithDelay(ctx context.Context, notificationID string, retryCount int, delay time.Duration) error

	// Consume blocks until a WorkItem is available, ctx is cancelled, or
	// the implementation's poll timeout elapses, returning ErrNoWork in the
	// latter two cases. The returned token must be
	// passed to Ack or Nack to resolve the delivery.
	Consume(ctx context.Context) (item WorkItem, token string, err error)

	// Ack permanently removes the work item identified by token.
	Ack(ctx context.Context, token string) error

	// Nack returns the work item identified by token to the queue for
	// immediate redelivery, used when a worker cannot process an item
	// (e.g. on shutdown) and wants it picked up by another worker.
	Nack(ctx context.Context, token string) error

	// Close releases the broker's underlying connection.
	Close() error
}
