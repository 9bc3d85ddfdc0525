package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/broker"
	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/models"
	"github.com/bryonbaker/relay/internal/service"
	"github.com/bryonbaker/relay/internal/store"
)

func newTestServer() (*Server, *store.MockStore, *broker.MockBroker) {
	s := &store.MockStore{}
	b := &broker.MockBroker{}
	m := metrics.New(prometheus.NewRegistry())
	svc := service.New(s, b, m, zap.NewNop())
	srv := New(svc, Config{Port: 0}, m, zap.NewNop())
	return srv, s, b
}

func doRequest(srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleCreate_Success(t *testing.T) {
	srv, s, b := newTestServer()

	saved := &models.Notification{ID: "n1", VendorName: "stripe", Status: models.StatusPending}
	s.On("Insert", mock.Anything, mock.AnythingOfType("*models.Notification")).Return(saved, nil)
	b.On("Publish", mock.Anything, "n1").Return(nil)

	rec := doRequest(srv, http.MethodPost, "/api/v1/notifications", CreateNotificationRequest{
		VendorName: "stripe",
		TargetURL:  "https://example.test/hook",
		HTTPMethod: "POST",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp NotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "n1", resp.ID)
	s.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestHandleCreate_ValidationFailure(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doRequest(srv, http.MethodPost, "/api/v1/notifications", CreateNotificationRequest{
		VendorName: "",
		TargetURL:  "not-a-url",
		HTTPMethod: "TRACE",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_FAILED", resp.Error)
}

func TestHandleCreate_ServiceValidationError(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doRequest(srv, http.MethodPost, "/api/v1/notifications", CreateNotificationRequest{
		VendorName: "stripe",
		TargetURL:  "ftp://example.test",
		HTTPMethod: "POST",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGet_Found(t *testing.T) {
	srv, s, _ := newTestServer()
	n := &models.Notification{ID: "n1", Status: models.StatusDelivered}
	s.On("FindByID", mock.Anything, "n1").Return(n, nil)

	rec := doRequest(srv, http.MethodGet, "/api/v1/notifications/n1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp NotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "n1", resp.ID)
}

func TestHandleGet_NotFound(t *testing.T) {
	srv, s, _ := newTestServer()
	s.On("FindByID", mock.Anything, "missing").Return(nil, store.ErrNotFound)

	rec := doRequest(srv, http.MethodGet, "/api/v1/notifications/missing", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp.Error)
}

func TestHandleRetry_StateConflict(t *testing.T) {
	srv, s, _ := newTestServer()
	s.On("ResetForRetry", mock.Anything, "n1").Return(nil, store.ErrStateConflict)

	rec := doRequest(srv, http.MethodPost, "/api/v1/notifications/n1/retry", nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "STATE_CONFLICT", resp.Error)
}

func TestHandleRetry_Success(t *testing.T) {
	srv, s, b := newTestServer()
	reset := &models.Notification{ID: "n1", Status: models.StatusPending}
	s.On("ResetForRetry", mock.Anything, "n1").Return(reset, nil)
	b.On("Publish", mock.Anything, "n1").Return(nil)

	rec := doRequest(srv, http.MethodPost, "/api/v1/notifications/n1/retry", nil)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCancel_Success(t *testing.T) {
	srv, s, _ := newTestServer()
	cancelled := &models.Notification{ID: "n1", Status: models.StatusCancelled}
	s.On("CancelNotification", mock.Anything, "n1").Return(cancelled, nil)

	rec := doRequest(srv, http.MethodDelete, "/api/v1/notifications/n1", nil)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestHandleListFailed_FiltersByVendor(t *testing.T) {
	srv, s, _ := newTestServer()
	results := []*models.Notification{{ID: "n1", VendorName: "stripe", Status: models.StatusFailed}}
	s.On("FindByVendorNameAndStatus", mock.Anything, "stripe", models.StatusFailed).Return(results, nil)

	rec := doRequest(srv, http.MethodGet, "/api/v1/notifications/failed?vendorName=stripe", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []NotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "n1", resp[0].ID)
}

func TestHandleListFailed_NoFilter(t *testing.T) {
	srv, s, _ := newTestServer()
	s.On("FindByStatus", mock.Anything, models.StatusFailed).Return([]*models.Notification{}, nil)

	rec := doRequest(srv, http.MethodGet, "/api/v1/notifications/failed", nil)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCreate_InternalError(t *testing.T) {
	srv, s, _ := newTestServer()
	s.On("Insert", mock.Anything, mock.AnythingOfType("*models.Notification")).Return(nil, assertAnError())

	rec := doRequest(srv, http.MethodPost, "/api/v1/notifications", CreateNotificationRequest{
		VendorName: "stripe",
		TargetURL:  "https://example.test/hook",
		HTTPMethod: "POST",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func assertAnError() error {
	return context.DeadlineExceeded
}
