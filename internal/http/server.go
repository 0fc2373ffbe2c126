// Package http provides the read-only HTTP API for stageflowd.
//
// The MCP transport is the primary surface; these endpoints exist for
// operators and dashboards that want to inspect workflows and references
// without speaking MCP.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stageflow/internal/reference"
	"github.com/fyrsmithlabs/stageflow/internal/services"
	"github.com/fyrsmithlabs/stageflow/internal/workflow"
)

// Server provides HTTP endpoints for stageflowd.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server backed by the service registry.
func NewServer(reg services.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("service registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9820,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: reg,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/workflows", s.handleListWorkflows)
	v1.GET("/workflows/:id", s.handleGetWorkflow)
	v1.GET("/references", s.handleQueryReferences)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleListWorkflows lists workflows, optionally filtered by ?status=.
func (s *Server) handleListWorkflows(c echo.Context) error {
	filter := workflow.Status(c.QueryParam("status"))
	if filter != "" && !filter.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", filter))
	}

	workflows := s.registry.Workflows().List(c.Request().Context(), filter)
	resp := WorkflowListResponse{
		Workflows: make([]WorkflowResponse, 0, len(workflows)),
		Count:     len(workflows),
	}
	for _, w := range workflows {
		resp.Workflows = append(resp.Workflows, toWorkflowResponse(w, false))
	}
	return c.JSON(http.StatusOK, resp)
}

// handleGetWorkflow returns one workflow with its context and history.
func (s *Server) handleGetWorkflow(c echo.Context) error {
	id := c.Param("id")
	w, err := s.registry.Workflows().Get(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("workflow lookup failed", zap.String("workflow_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "workflow lookup failed")
	}
	if w == nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("workflow %q not found", id))
	}
	return c.JSON(http.StatusOK, toWorkflowResponse(w, true))
}

// handleQueryReferences queries the cross-stage reference registry.
// Query params: mode (required), artifact, type, role=source|target.
func (s *Server) handleQueryReferences(c echo.Context) error {
	mode := c.QueryParam("mode")
	if mode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "mode query parameter is required")
	}
	refType := reference.Type(c.QueryParam("type"))
	if refType != "" && !refType.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown reference type %q", refType))
	}
	role := c.QueryParam("role")
	switch role {
	case "", "source", "target":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("role must be source or target, got %q", role))
	}

	refs := s.registry.References().Get(c.Request().Context(), reference.Query{
		Mode:     mode,
		Artifact: c.QueryParam("artifact"),
		Type:     refType,
		AsSource: role == "source",
	})

	resp := ReferenceListResponse{
		References: make([]ReferenceResponse, 0, len(refs)),
		Count:      len(refs),
	}
	for _, ref := range refs {
		resp.References = append(resp.References, toReferenceResponse(ref))
	}
	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
