package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer builds a Server wired to an httptest recorder. It returns
// the Server so callers can issue requests without starting a real
// listener.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	_ = New(reg)
	return NewServer(0, "/metrics", "/healthz", "/ready", reg)
}

func TestLivenessReturns200(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestReadinessReturns200WhenHealthy(t *testing.T) {
	srv := newTestServer(t)

	srv.SetReady(true)
	srv.UpdateHealthCheck("store", "ok")
	srv.UpdateHealthCheck("broker", "ok")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])

	checks, ok := body["checks"].(map[string]interface{})
	require.True(t, ok, "expected checks to be a map")
	assert.Equal(t, "ok", checks["store"])
	assert.Equal(t, "ok", checks["broker"])
}

func TestReadinessReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadinessReturns503WhenComponentUnhealthy(t *testing.T) {
	srv := newTestServer(t)

	srv.SetReady(true)
	srv.UpdateHealthCheck("store", "ok")
	srv.UpdateHealthCheck("broker", "degraded")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]interface{}
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	require.NoError(t, err)
	checks, ok := body["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "degraded", checks["broker"])
}

func TestMetricsEndpointReturns200(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_")
}

func TestSetReadyToggle(t *testing.T) {
	srv := newTestServer(t)

	assert.False(t, srv.isReady())
	srv.SetReady(true)
	assert.True(t, srv.isReady())
	srv.SetReady(false)
	assert.False(t, srv.isReady())
}

func TestHealthChecksUpdate(t *testing.T) {
	hc := NewHealthChecks()

	hc.Update("store", "ok")
	hc.Update("broker", "ok")
	assert.True(t, hc.AllOK())

	hc.Update("broker", "error")
	assert.False(t, hc.AllOK())

	all := hc.All()
	assert.Equal(t, "ok", all["store"])
	assert.Equal(t, "error", all["broker"])
}

func TestHealthChecksAllOKEmptyIsTrue(t *testing.T) {
	hc := NewHealthChecks()
	assert.True(t, hc.AllOK())
}
