package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondWithError sends the flat {status, error, message, details[],
// timestamp} envelope and logs the failure.
func (s *Server) respondWithError(c *gin.Context, statusCode int, errCode, message string, details []string) {
	resp := ErrorResponse{
		Status:    statusCode,
		Error:     errCode,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	logger := s.logger.With(
		zap.Int("status_code", statusCode),
		zap.String("error", errCode),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	)
	if statusCode >= 500 {
		logger.Error(message)
	} else {
		logger.Warn(message)
	}

	if s.metrics != nil {
		s.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(statusCode)).Inc()
	}

	c.JSON(statusCode, resp)
}

func (s *Server) respondWithSuccess(c *gin.Context, statusCode int, data interface{}) {
	if s.metrics != nil {
		s.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(statusCode)).Inc()
	}
	c.JSON(statusCode, data)
}
