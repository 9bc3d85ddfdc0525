package broker

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockBroker is a testify/mock implementation of Broker.
type MockBroker struct {
	mock.Mock
}

var _ Broker = (*MockBroker)(nil)

func (m *MockBroker) Publish(ctx context.Context, notificationID string) error {
	args := m.Called(ctx, notificationID)
	return args.Error(0)
}

func (m *MockBroker) PublishWithDelay(ctx context.Context, notificationID string, retryCount int, delay time.Duration) error {
	args := m.Called(ctx, notificationID, retryCount, delay)
	return args.Error(0)
}

func (m *MockBroker) Consume(ctx context.Context) (WorkItem, string, error) {
	args := m.Called(ctx)
	return args.Get(0).(WorkItem), args.String(1), args.Error(2)
}

func (m *MockBroker) Ack(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockBroker) Nack(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockBroker) Close() error {
	args := m.Called()
	return args.Error(0)
}

// QueueDepth and DelayedDepth let MockBroker double as a
// storage.DepthReporter in operational-monitor tests.

func (m *MockBroker) QueueDepth(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBroker) DelayedDepth(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
