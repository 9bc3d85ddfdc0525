package mockvendor

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWebhook_SuccessMode(t *testing.T) {
	cfg := Defaults()
	srv := New(cfg)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"hello":"world"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")
}

func TestHandleWebhook_FailureMode(t *testing.T) {
	cfg := Defaults()
	cfg.Behavior.Mode = "failure"
	cfg.Behavior.StatusCode = http.StatusServiceUnavailable
	srv := New(cfg)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleWebhook_DuplicateIdempotencyKey(t *testing.T) {
	cfg := Defaults()
	srv := New(cfg)

	req1 := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	req1.Header.Set("X-Idempotency-Key", "k1")
	rec1 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	req2.Header.Set("X-Idempotency-Key", "k1")
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)

	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "duplicate")
}

func TestHandleStats_ReportsDeliveryCounts(t *testing.T) {
	cfg := Defaults()
	srv := New(cfg)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	statsReq := httptest.NewRequest(http.MethodGet, "/stats", nil)
	statsRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(statsRec, statsReq)

	assert.Equal(t, http.StatusOK, statsRec.Code)
	assert.Contains(t, statsRec.Body.String(), `"total_deliveries":1`)
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	cfg := Defaults()
	srv := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoad_DefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "success", cfg.Behavior.Mode)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestLoad_RejectsInvalidMode(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("behavior:\n  mode: bogus\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid behavior mode")
}
