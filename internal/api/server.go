package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/middleware"
	"github.com/clinical-kg-server/internal/service"
)

const serviceName = "clinical-kg-server"

// GraphService is the knowledge graph use case the HTTP layer serves.
type GraphService interface {
	GetGraph(ctx context.Context, patientID string, refresh bool) (*domain.KnowledgeGraph, error)
	GetSummary(ctx context.Context, patientID string, refresh bool) (*service.GraphSummary, error)
	Invalidate(ctx context.Context, patientID string) error
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	cfg     *domain.Config
	graphs  GraphService
	checks  map[string]HealthCheck
	router  *gin.Engine
	server  *http.Server
	logger  *logrus.Logger
	version string
}

// NewServer creates a new HTTP server instance. checks are reported by
// /health; any failing check turns the response into a 503.
func NewServer(cfg *domain.Config, graphs GraphService, checks map[string]HealthCheck, version string, logger *logrus.Logger) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)))
	}
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	s := &Server{
		cfg:     cfg,
		graphs:  graphs,
		checks:  checks,
		router:  router,
		logger:  logger,
		version: version,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/knowledge-graph/:patient_id", s.handleGetGraph)
		v1.GET("/knowledge-graph/:patient_id/statistics", s.handleGetStatistics)
		v1.DELETE("/knowledge-graph/:patient_id/cache", s.handleInvalidate)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC(),
		"version":    s.version,
	})
}

func (s *Server) handleGetGraph(c *gin.Context) {
	refresh, ok := s.refreshParam(c)
	if !ok {
		return
	}

	graph, err := s.graphs.GetGraph(c.Request.Context(), c.Param("patient_id"), refresh)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, graph)
}

func (s *Server) handleGetStatistics(c *gin.Context) {
	refresh, ok := s.refreshParam(c)
	if !ok {
		return
	}

	summary, err := s.graphs.GetSummary(c.Request.Context(), c.Param("patient_id"), refresh)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleInvalidate(c *gin.Context) {
	if err := s.graphs.Invalidate(c.Request.Context(), c.Param("patient_id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) refreshParam(c *gin.Context) (bool, bool) {
	raw := c.Query("refresh")
	if raw == "" {
		return false, true
	}
	refresh, err := strconv.ParseBool(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrInvalidInput, "refresh must be a boolean", raw, c.GetString(middleware.CorrelationIDKey)))
		return false, false
	}
	return refresh, true
}

// writeError maps service errors onto status codes and APIError bodies.
// Data access details are logged, not returned.
func (s *Server) writeError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	switch {
	case errors.Is(err, domain.ErrInvalidPatientID):
		c.AbortWithStatusJSON(http.StatusBadRequest,
			domain.NewAPIError(domain.ErrInvalidInput, "patient_id is required", "", requestID))
	case errors.Is(err, domain.ErrCircuitOpen):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			domain.NewAPIError(domain.ErrDataAccess, "Clinical data store temporarily unavailable", "", requestID))
	case errors.Is(err, context.DeadlineExceeded):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout,
			domain.NewAPIError(domain.ErrDataAccess, "Timed out loading clinical data", "", requestID))
	case domain.IsDataAccessError(err):
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			domain.NewAPIError(domain.ErrDataAccess, "Failed to load clinical data", "", requestID))
	default:
		s.logger.WithFields(logrus.Fields{
			"correlation_id": requestID,
			"error":          err,
		}).Error("Unhandled request error")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", requestID))
	}
}
