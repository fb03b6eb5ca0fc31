// Package http provides the HTTP adapter over the application layer.
// Handlers translate requests into orchestrator, checkpoint, and query
// service calls; no workflow logic lives here.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/checkpoint"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/orchestrator"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/service"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/report"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server wired to the given application services
func NewServer(
	config ServerConfig,
	orch orchestrator.Orchestrator,
	manager *checkpoint.Manager,
	queries *service.QueryService,
	workbooks *report.WorkbookWriter,
	uploadDir string,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes(orch, manager, queries, workbooks, uploadDir)

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(
	orch orchestrator.Orchestrator,
	manager *checkpoint.Manager,
	queries *service.QueryService,
	workbooks *report.WorkbookWriter,
	uploadDir string,
) {
	handlers := NewHandlers(orch, manager, queries, workbooks, uploadDir, s.logger)
	s.handlers = handlers

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		// Invoice intake
		api.POST("/invoices", handlers.SubmitInvoice)

		// Workflow instances
		api.GET("/instances", handlers.ListInstances)
		api.GET("/instances/:id", handlers.GetInstance)
		api.GET("/instances/:id/history", handlers.GetHistory)
		api.GET("/instances/:id/audit", handlers.GetAuditTrail)
		api.GET("/instances/:id/artifact", handlers.GetArtifact)
		api.GET("/instances/:id/artifact.xlsx", handlers.GetArtifactWorkbook)
		api.POST("/instances/:id/advance", handlers.AdvanceInstance)
		api.POST("/instances/:id/cancel", handlers.CancelInstance)

		// Review queue
		api.GET("/reviews/pending", handlers.ListPendingReviews)
		api.GET("/reviews/:id", handlers.GetReview)
		api.POST("/reviews/:id/decision", handlers.DecideReview)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// SetHealthFunc installs a component health probe consulted by the
// health endpoint. Without one the endpoint reports process liveness only.
func (s *Server) SetHealthFunc(fn HealthFunc) {
	s.handlers.health = fn
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
