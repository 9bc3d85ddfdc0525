package adapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bryonbaker/relay/internal/models"
)

func resp(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestGenericHTTP_Deliver_Success(t *testing.T) {
	client := &MockHTTPClient{}
	client.On("Do", mock.Anything).Return(resp(200, `{"ok":true}`), nil)

	a := NewGenericHTTP(client)
	n := &models.Notification{TargetURL: "https://example.test/ok", HTTPMethod: models.MethodPost, Body: "{}"}

	result := a.Deliver(context.Background(), n)
	assert.True(t, result.Success)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, `{"ok":true}`, result.ResponseBody)
}

func TestGenericHTTP_Deliver_NonRetryableFailure(t *testing.T) {
	client := &MockHTTPClient{}
	client.On("Do", mock.Anything).Return(resp(400, "bad request"), nil)

	a := NewGenericHTTP(client)
	n := &models.Notification{TargetURL: "https://example.test/bad", HTTPMethod: models.MethodPost}

	result := a.Deliver(context.Background(), n)
	require.False(t, result.Success)
	assert.Equal(t, 400, result.StatusCode)
	assert.False(t, a.IsRetryable(result.StatusCode, result.ResponseBody))
}

func TestGenericHTTP_Deliver_TransportFailure(t *testing.T) {
	client := &MockHTTPClient{}
	client.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))

	a := NewGenericHTTP(client)
	n := &models.Notification{TargetURL: "https://example.test/down", HTTPMethod: models.MethodPost}

	result := a.Deliver(context.Background(), n)
	require.False(t, result.Success)
	assert.Equal(t, 0, result.StatusCode)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.True(t, a.IsRetryable(result.StatusCode, result.ResponseBody))
}

func TestIsRetryableStatus(t *testing.T) {
	cases := map[int]bool{
		0:   true,
		429: true,
		500: true,
		503: true,
		400: false,
		404: false,
		422: false,
		200: false,
	}
	for code, want := range cases {
		assert.Equal(t, want, IsRetryableStatus(code), "status %d", code)
	}
}

func TestRegistry_FallsBackToGeneric(t *testing.T) {
	generic := NewGenericHTTP(&MockHTTPClient{})
	reg, err := NewRegistry(generic)
	require.NoError(t, err)

	assert.Same(t, Adapter(generic), reg.GetAdapter("unknown-vendor"))
	assert.Same(t, Adapter(generic), reg.GetAdapter("generic"))
}

func TestRegistry_FailsFastWithoutGenericFallback(t *testing.T) {
	_, err := NewRegistry(&namedAdapter{name: "stripe"})
	require.Error(t, err)
}

func TestRegistry_EmptyRegistryIsValid(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Nil(t, reg.GetAdapter("anything"))
}

type namedAdapter struct{ name string }

func (n *namedAdapter) VendorName() string { return n.name }
func (n *namedAdapter) Deliver(context.Context, *models.Notification) models.DeliveryResult {
	return models.DeliveryResult{}
}
func (n *namedAdapter) IsRetryable(int, string) bool { return false }
