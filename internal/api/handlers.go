package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bryonbaker/relay/internal/models"
	"github.com/bryonbaker/relay/internal/service"
	"github.com/bryonbaker/relay/internal/store"
)

// handleCreate returns the full notification record rather than the bare
// {id, status, createdAt} triple: a deliberate superset, not a narrower
// response shape than callers expect.
func (s *Server) handleCreate(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", "request body failed validation", []string{err.Error()})
		return
	}

	n, err := s.service.Create(c.Request.Context(), service.CreateInput{
		VendorName:     req.VendorName,
		TargetURL:      req.TargetURL,
		HTTPMethod:     req.HTTPMethod,
		Headers:        req.Headers,
		Body:           req.Body,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	s.respondWithSuccess(c, http.StatusAccepted, toNotificationResponse(n))
}

func (s *Server) handleGet(c *gin.Context) {
	id := c.Param("id")
	n, err := s.service.Get(c.Request.Context(), id)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	s.respondWithSuccess(c, http.StatusOK, toNotificationResponse(n))
}

func (s *Server) handleRetry(c *gin.Context) {
	id := c.Param("id")
	n, err := s.service.Retry(c.Request.Context(), id)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}
	s.respondWithSuccess(c, http.StatusOK, toNotificationResponse(n))
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.service.Cancel(c.Request.Context(), id); err != nil {
		s.handleServiceError(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(http.StatusNoContent)).Inc()
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListFailed(c *gin.Context) {
	vendorName := c.Query("vendorName")
	notifications, err := s.service.ListFailed(c.Request.Context(), vendorName)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	resp := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, toNotificationResponse(n))
	}
	s.respondWithSuccess(c, http.StatusOK, resp)
}

// handleServiceError maps the service package's sentinel errors onto the
// flat API error envelope.
func (s *Server) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		s.respondWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		s.respondWithError(c, http.StatusNotFound, "NOT_FOUND", "notification not found", nil)
	case errors.Is(err, store.ErrStateConflict):
		s.respondWithError(c, http.StatusConflict, "STATE_CONFLICT", err.Error(), nil)
	default:
		s.respondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", nil)
	}
}

func toNotificationResponse(n *models.Notification) NotificationResponse {
	attempts := make([]DeliveryAttemptResponse, 0, len(n.Attempts))
	for _, a := range n.Attempts {
		attempts = append(attempts, DeliveryAttemptResponse{
			Timestamp:    a.Timestamp,
			ResponseCode: a.ResponseCode,
			ResponseBody: a.ResponseBody,
			ErrorMessage: a.ErrorMessage,
		})
	}

	return NotificationResponse{
		ID:             n.ID,
		VendorName:     n.VendorName,
		TargetURL:      n.TargetURL,
		HTTPMethod:     n.HTTPMethod,
		Headers:        n.Headers,
		Body:           n.Body,
		IdempotencyKey: n.IdempotencyKey,
		Status:         n.Status,
		RetryCount:     n.RetryCount,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
		NextRetryAt:    n.NextRetryAt,
		Attempts:       attempts,
	}
}
