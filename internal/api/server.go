// Package api implements the public HTTP API for submitting, inspecting,
// retrying, and cancelling notifications (spec.md §6).
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bryonbaker/relay/internal/metrics"
	"github.com/bryonbaker/relay/internal/service"
)

// Server exposes the notification API over HTTP.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	service    *service.Service
	validate   *validator.Validate
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Config controls the HTTP API server.
type Config struct {
	Port           int
	RequestTimeout time.Duration
}

// New creates a Server with the given dependencies and registers all
// routes.
func New(svc *service.Service, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		service:  svc,
		validate: validator.New(),
		metrics:  m,
		logger:   logger,
	}

	s.registerMiddleware()
	s.registerRoutes()

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	return s
}

func (s *Server) registerMiddleware() {
	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.metrics != nil {
			s.metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(time.Since(start).Seconds())
		}
	})
}

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/notifications", s.handleCreate)
		v1.GET("/notifications/failed", s.handleListFailed)
		v1.GET("/notifications/:id", s.handleGet)
		v1.POST("/notifications/:id/retry", s.handleRetry)
		v1.DELETE("/notifications/:id", s.handleCancel)
	}
}

// Router exposes the underlying gin engine, primarily for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving HTTP requests. It blocks until the server is
// shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("api server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
