package api

import "time"

// CreateNotificationRequest is the request body for POST
// /api/v1/notifications.
type CreateNotificationRequest struct {
	VendorName     string            `json:"vendorName" binding:"required"`
	TargetURL      string            `json:"targetUrl" binding:"required,url"`
	HTTPMethod     string            `json:"httpMethod" binding:"required,oneof=GET POST PUT PATCH DELETE"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// NotificationResponse is the wire representation of a notification,
// mirroring models.Notification's JSON shape.
type NotificationResponse struct {
	ID             string                    `json:"id"`
	VendorName     string                    `json:"vendorName"`
	TargetURL      string                    `json:"targetUrl"`
	HTTPMethod     string                    `json:"httpMethod"`
	Headers        map[string]string         `json:"headers,omitempty"`
	Body           string                    `json:"body,omitempty"`
	IdempotencyKey string                    `json:"idempotencyKey,omitempty"`
	Status         string                    `json:"status"`
	RetryCount     int                       `json:"retryCount"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
	NextRetryAt    *time.Time                `json:"nextRetryAt,omitempty"`
	Attempts       []DeliveryAttemptResponse `json:"attempts"`
}

// DeliveryAttemptResponse is the wire representation of one delivery
// attempt.
type DeliveryAttemptResponse struct {
	Timestamp    time.Time `json:"timestamp"`
	ResponseCode int       `json:"responseCode"`
	ResponseBody string    `json:"responseBody,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// ErrorResponse is the flat error envelope returned by every failed API
// call.
type ErrorResponse struct {
	Status    int      `json:"status"`
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"`
	Timestamp string   `json:"timestamp"`
}
