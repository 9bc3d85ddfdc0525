// Package adapter implements per-vendor HTTP delivery and result
// classification (spec.md §4.2, §4.3).
//
// Adapted from the teacher's internal/notifier HTTP-dispatch logic
// (buildRequest, handleResponse, isRetryable), generalized into a
// polymorphic capability bundle so new vendors can be registered without
// touching the delivery worker.
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bryonbaker/relay/internal/models"
)

// HTTPClient is the interface used to send HTTP requests. *http.Client
// satisfies this interface, and it can be replaced with a mock in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Adapter is the capability bundle every vendor integration implements:
// a name, a way to perform one delivery attempt, and a way to classify
// whether a given outcome is worth retrying.
type Adapter interface {
	// VendorName returns the vendor identifier this adapter serves.
	VendorName() string

	// Deliver performs exactly one HTTP attempt against the notification's
	// target and returns its outcome. It never retries internally.
	Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult

	// IsRetryable classifies a delivery outcome by status code.
	IsRetryable(statusCode int, body string) bool
}

// GenericHTTP is the default Adapter: a plain HTTP request/response round
// trip with no vendor-specific framing or auth.
type GenericHTTP struct {
	client HTTPClient
}

// NewGenericHTTP builds the default adapter using client for outbound
// requests.
func NewGenericHTTP(client HTTPClient) *GenericHTTP {
	return &GenericHTTP{client: client}
}

// VendorName identifies this adapter as the registry's fallback.
func (g *GenericHTTP) VendorName() string { return "generic" }

// Deliver issues one HTTP request to n.TargetURL using n.HTTPMethod,
// n.Headers and n.Body. Exactly one of success/failure/connectionFailure is
// returned; the HTTP response body, when present, is always drained and
// closed before returning.
func (g *GenericHTTP) Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult {
	var bodyReader io.Reader
	if n.Body != "" {
		bodyReader = bytes.NewReader([]byte(n.Body))
	}

	req, err := http.NewRequestWithContext(ctx, n.HTTPMethod, n.TargetURL, bodyReader)
	if err != nil {
		return models.DeliveryResult{
			Success:      false,
			StatusCode:   0,
			ErrorMessage: fmt.Sprintf("building request: %v", err),
		}
	}
	for k, v := range n.Headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return models.DeliveryResult{
			Success:      false,
			StatusCode:   0,
			ErrorMessage: fmt.Sprintf("request failed: %v", err),
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return models.DeliveryResult{
			Success:      true,
			StatusCode:   resp.StatusCode,
			ResponseBody: string(respBody),
		}
	}

	return models.DeliveryResult{
		Success:      false,
		StatusCode:   resp.StatusCode,
		ResponseBody: string(respBody),
		ErrorMessage: fmt.Sprintf("vendor returned status %d", resp.StatusCode),
	}
}

// IsRetryable implements the default retry classification from spec.md
// §4.2: transport failures, 429, and any 5xx are retryable; all other 4xx
// and 2xx (never asked, success short-circuits) are not.
func (g *GenericHTTP) IsRetryable(statusCode int, _ string) bool {
	return IsRetryableStatus(statusCode)
}

// IsRetryableStatus is the free-function form of the default classification
// rule, exported so the worker can apply it as a fallback when an adapter
// does not override retry classification.
func IsRetryableStatus(statusCode int) bool {
	return statusCode == 0 || statusCode == http.StatusTooManyRequests || statusCode >= 500
}
