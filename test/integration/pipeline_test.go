//go:build integration

// Package integration_test exercises relay's full pipeline — service, store,
// broker, and delivery worker — wired together against an in-memory
// SQLite database, a miniredis broker, and an httptest vendor endpoint.
package integration_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/adapter"
	"github.com/bryonbaker/relay/internal/broker"
	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/models"
	"github.com/bryonbaker/relay/internal/retry"
	"github.com/bryonbaker/relay/internal/service"
	"github.com/bryonbaker/relay/internal/store"
	"github.com/bryonbaker/relay/internal/worker"
)

// testPipeline bundles a fully wired store+broker+worker+service stack
// against an in-memory SQLite database and a miniredis broker.
type testPipeline struct {
	svc    *service.Service
	store  store.Store
	broker broker.Broker
	worker *worker.Worker
	logger *zap.Logger
}

func newTestPipeline(t *testing.T, targetHandler http.HandlerFunc, maxRetryCount int) (*testPipeline, *httptest.Server, func()) {
	t.Helper()

	logger := zap.NewNop()

	st, err := store.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b, err := broker.NewRedisBrokerWithClient(client, broker.RedisConfig{
		Queue:           "test",
		PromoteInterval: 10 * time.Millisecond,
	}, logger)
	require.NoError(t, err)

	target := httptest.NewServer(targetHandler)

	registry, err := adapter.NewRegistry(adapter.NewGenericHTTP(target.Client()))
	require.NoError(t, err)

	calc := retry.NewCalculator(retry.Config{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
	}, nil)

	m := metrics.New(prometheus.NewRegistry())

	w := worker.New(st, b, registry, calc, worker.Config{
		Concurrency:   2,
		MaxRetryCount: maxRetryCount,
		PollTimeout:   100 * time.Millisecond,
	}, m, logger)

	svc := service.New(st, b, m, logger)

	cleanup := func() {
		st.Close()
		b.Close()
		mr.Close()
		target.Close()
	}

	return &testPipeline{svc: svc, store: st, broker: b, worker: w, logger: logger}, target, cleanup
}

func waitForStatus(t *testing.T, svc *service.Service, id, status string, timeout time.Duration) *models.Notification {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		if n.Status == status {
			return n
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("notification %s did not reach status %s in time", id, status)
	return nil
}

// TestPipeline_ImmediateDeliverySucceeds exercises the happy path: a
// created notification is published, consumed, delivered, and marked
// DELIVERED.
func TestPipeline_ImmediateDeliverySucceeds(t *testing.T) {
	pipe, target, cleanup := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, 5)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipe.worker.Run(ctx)

	n, err := pipe.svc.Create(context.Background(), service.CreateInput{
		VendorName: "generic",
		TargetURL:  target.URL,
		HTTPMethod: "POST",
	})
	require.NoError(t, err)

	final := waitForStatus(t, pipe.svc, n.ID, models.StatusDelivered, 2*time.Second)
	require.Len(t, final.Attempts, 1)
	require.Equal(t, http.StatusOK, final.Attempts[0].ResponseCode)
}

// TestPipeline_RetryThenSucceed simulates a vendor that fails twice then
// succeeds, verifying the notification eventually reaches DELIVERED with
// three recorded attempts (spec.md §8 scenario 2).
func TestPipeline_RetryThenSucceed(t *testing.T) {
	var calls int32
	pipe, target, cleanup := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, 5)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipe.worker.Run(ctx)

	n, err := pipe.svc.Create(context.Background(), service.CreateInput{
		VendorName: "generic",
		TargetURL:  target.URL,
		HTTPMethod: "POST",
	})
	require.NoError(t, err)

	final := waitForStatus(t, pipe.svc, n.ID, models.StatusDelivered, 5*time.Second)
	require.Len(t, final.Attempts, 3)
	require.Equal(t, 2, final.RetryCount)
}

// TestPipeline_ExhaustedRetriesReachesFailed simulates a permanently
// failing vendor and verifies the notification terminates as FAILED once
// maxRetryCount retries are exhausted, i.e. after maxRetryCount+1 attempts
// (spec.md §8 scenario 3).
func TestPipeline_ExhaustedRetriesReachesFailed(t *testing.T) {
	pipe, target, cleanup := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 2)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipe.worker.Run(ctx)

	n, err := pipe.svc.Create(context.Background(), service.CreateInput{
		VendorName: "generic",
		TargetURL:  target.URL,
		HTTPMethod: "POST",
	})
	require.NoError(t, err)

	final := waitForStatus(t, pipe.svc, n.ID, models.StatusFailed, 5*time.Second)
	require.Len(t, final.Attempts, 3)
}

// TestPipeline_IdempotentCreateDoesNotDoubleDeliver fires two concurrent
// Create calls with the same idempotency key and asserts the vendor sees
// exactly one delivery (spec.md §8 scenario 5).
func TestPipeline_IdempotentCreateDoesNotDoubleDeliver(t *testing.T) {
	var deliveries int32
	pipe, target, cleanup := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&deliveries, 1)
		w.WriteHeader(http.StatusOK)
	}, 5)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipe.worker.Run(ctx)

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			n, err := pipe.svc.Create(context.Background(), service.CreateInput{
				VendorName:     "generic",
				TargetURL:      target.URL,
				HTTPMethod:     "POST",
				IdempotencyKey: "shared-key",
			})
			require.NoError(t, err)
			ids[idx] = n.ID
		}(i)
	}
	wg.Wait()

	require.Equal(t, ids[0], ids[1], "both creates should resolve to the same notification")

	waitForStatus(t, pipe.svc, ids[0], models.StatusDelivered, 2*time.Second)
	require.Equal(t, int32(1), atomic.LoadInt32(&deliveries))
}

// TestPipeline_OperatorResetRedeliversAfterFailure exercises the full
// round trip of scenario 7: a notification exhausts retries to FAILED,
// an operator retries it, and it is redelivered successfully.
func TestPipeline_OperatorResetRedeliversAfterFailure(t *testing.T) {
	var shouldFail int32 = 1
	pipe, target, cleanup := newTestPipeline(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&shouldFail) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, 1)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipe.worker.Run(ctx)

	n, err := pipe.svc.Create(context.Background(), service.CreateInput{
		VendorName: "generic",
		TargetURL:  target.URL,
		HTTPMethod: "POST",
	})
	require.NoError(t, err)

	waitForStatus(t, pipe.svc, n.ID, models.StatusFailed, 5*time.Second)

	atomic.StoreInt32(&shouldFail, 0)

	_, err = pipe.svc.Retry(context.Background(), n.ID)
	require.NoError(t, err)

	final := waitForStatus(t, pipe.svc, n.ID, models.StatusDelivered, 5*time.Second)
	require.Equal(t, 0, final.RetryCount)
}
