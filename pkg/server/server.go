// Package server provides HTTP server functionality for mcpd.
//
// This package implements a graceful HTTP server with Echo router,
// health check and metrics endpoints, and context-aware shutdown. The
// MCP protocol routes are mounted separately by pkg/mcp.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/mcpd/internal/config"
)

// Server represents the HTTP server.
type Server struct {
	config *config.Config
	echo   *echo.Echo
}

// HealthResponse is the JSON response for the /health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// NewServer creates a new HTTP server with the given configuration.
//
// The server includes:
//   - Echo router for HTTP routing
//   - Recover and request ID middleware
//   - Health check endpoint at GET /health
//   - Prometheus metrics at GET /metrics
//   - Graceful shutdown support
func NewServer(cfg *config.Config) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		config: cfg,
		echo:   e,
	}

	s.registerRoutes()

	return s
}

// registerRoutes registers the public (unauthenticated) routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c echo.Context) error {
	response := HealthResponse{
		Status:  "ok",
		Service: s.config.Protocol.ServerName,
		Version: s.config.Protocol.ServerVersion,
	}

	return c.JSON(http.StatusOK, response)
}

// Start starts the HTTP server and blocks until context is cancelled.
//
// The server listens on the host and port from the configuration.
// When the context is cancelled, the server performs graceful shutdown
// with the configured timeout.
//
// Returns http.ErrServerClosed on graceful shutdown, or any other
// error encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering additional
// routes, such as the MCP transport endpoints.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
