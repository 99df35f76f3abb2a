package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/domain"
	"github.com/clinical-kg-server/internal/service"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// GraphService is the subset of the knowledge graph service exposed as tools.
type GraphService interface {
	GetGraph(ctx context.Context, patientID string, refresh bool) (*domain.KnowledgeGraph, error)
	GetSummary(ctx context.Context, patientID string, refresh bool) (*service.GraphSummary, error)
}

// Server exposes patient knowledge graphs to MCP clients.
type Server struct {
	config    domain.MCPConfig
	mcpServer *mcp.Server
	graphs    GraphService
	logger    *logrus.Logger
}

// NewServer creates the MCP server and registers its tools and prompts.
func NewServer(cfg domain.MCPConfig, graphs GraphService, logger *logrus.Logger) *Server {
	if cfg.ServerName == "" {
		cfg.ServerName = "clinical-kg-server"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "v0.1.0"
	}
	if cfg.TransportType == "" {
		cfg.TransportType = TransportStdio
	}

	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	s := &Server{
		config:    cfg,
		mcpServer: mcp.NewServer(serverInfo, nil),
		graphs:    graphs,
		logger:    logger,
	}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Start serves on the configured transport until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"server_name":    s.config.ServerName,
		"transport_type": s.config.TransportType,
	}).Info("Starting clinical knowledge graph MCP server")

	switch s.config.TransportType {
	case TransportStdio:
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport type: %s", s.config.TransportType)
	}
}

// Handler returns the streamable HTTP handler plus a /health endpoint.
func (s *Server) Handler() http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/", mcpHandler)
	mux.Handle("/mcp", mcpHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"server":  s.config.ServerName,
			"version": s.config.ServerVersion,
		})
	})
	return mux
}

func (s *Server) serveHTTP(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.HTTPHost, s.config.HTTPPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("MCP HTTP transport listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP HTTP transport: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
