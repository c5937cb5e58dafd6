// Package http exposes the approval engine over a gin HTTP API.
// Handlers only translate requests into application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sust-cse/approval-engine/internal/application/service"
	"github.com/sust-cse/approval-engine/pkg/telemetry"
)

// IdentityHeader carries the authenticated identity id set by the upstream gateway
const IdentityHeader = "X-Identity-ID"

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

	// SignatureDir, when set, is served read-only under SignaturePath
	SignatureDir  string
	SignaturePath string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		SignaturePath: "/signatures",
	}
}

// HealthCheck reports the state of one dependency
type HealthCheck func(ctx context.Context) error

// Services bundles the application services the API calls
type Services struct {
	Submission   service.SubmissionService
	Decision     service.DecisionService
	Verification service.VerificationService
	Checks       service.CheckService
	Queries      service.QueryService

	// HealthChecks are run by GET /health, keyed by dependency name
	HealthChecks map[string]HealthCheck
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	binding.Validator = newStructValidator()

	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.tracingMiddleware())
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

// tracingMiddleware opens a server span per request
func (s *Server) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// requireIdentity rejects requests without an identity header
func (s *Server) requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(IdentityHeader) == "" {
			writeProblem(c, http.StatusUnauthorized, "unauthenticated", "missing "+IdentityHeader+" header")
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.services, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	// Unauthenticated verification
	public := s.router.Group("/public")
	{
		public.GET("/verify/:code", handlers.Verify)
	}

	if s.config.SignatureDir != "" {
		path := s.config.SignaturePath
		if path == "" {
			path = "/signatures"
		}
		s.router.Static(path, s.config.SignatureDir)
	}

	api := s.router.Group("/api/v1", s.requireIdentity())
	{
		api.POST("/applications", handlers.SubmitApplication)
		api.POST("/cost-requests", handlers.SubmitCostRequest)
		api.POST("/cost-requests/:id/check", handlers.AttachCheck)

		api.GET("/instances", handlers.ListInstances)
		api.GET("/instances/:id", handlers.GetInstance)
		api.POST("/instances/:id/decisions", handlers.Decide)

		api.GET("/inbox", handlers.Inbox)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

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

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
