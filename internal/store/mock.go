package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/bryonbaker/relay/internal/models"
)

// MockStore is a testify/mock implementation of Store, mirroring the
// teacher's internal/database.MockDatabase.
type MockStore struct {
	mock.Mock
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) Insert(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	args := m.Called(ctx, n)
	return notificationOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	args := m.Called(ctx, id)
	return notificationOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) FindByIdempotencyKey(ctx context.Context, key string) (*models.Notification, error) {
	args := m.Called(ctx, key)
	return notificationOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) FindByStatus(ctx context.Context, status string) ([]*models.Notification, error) {
	args := m.Called(ctx, status)
	return notificationSliceOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) FindByVendorNameAndStatus(ctx context.Context, vendorName, status string) ([]*models.Notification, error) {
	args := m.Called(ctx, vendorName, status)
	return notificationSliceOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) CountByStatus(ctx context.Context, status string) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) CountByVendorNameAndStatus(ctx context.Context, vendorName, status string) (int, error) {
	args := m.Called(ctx, vendorName, status)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) FindByStatusAndNextRetryAtBefore(ctx context.Context, status string, t time.Time) ([]*models.Notification, error) {
	args := m.Called(ctx, status, t)
	return notificationSliceOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) MarkDelivered(ctx context.Context, id string, attempt models.DeliveryAttempt) (*models.Notification, error) {
	args := m.Called(ctx, id, attempt)
	return notificationOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) MarkFailed(ctx context.Context, id string, attempt models.DeliveryAttempt) (*models.Notification, error) {
	args := m.Called(ctx, id, attempt)
	return notificationOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) ScheduleRetry(ctx context.Context, id string, attempt models.DeliveryAttempt, nextRetryAt time.Time) (*models.Notification, error) {
	args := m.Called(ctx, id, attempt, nextRetryAt)
	return notificationOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) CancelNotification(ctx context.Context, id string) (*models.Notification, error) {
	args := m.Called(ctx, id)
	return notificationOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) ResetForRetry(ctx context.Context, id string) (*models.Notification, error) {
	args := m.Called(ctx, id)
	return notificationOrNil(args.Get(0)), args.Error(1)
}

func (m *MockStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) DatabaseSizeBytes(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func notificationOrNil(v interface{}) *models.Notification {
	if v == nil {
		return nil
	}
	return v.(*models.Notification)
}

func notificationSliceOrNil(v interface{}) []*models.Notification {
	if v == nil {
		return nil
	}
	return v.([]*models.Notification)
}
