// Package mcp exposes the stageflow services over the Model Context
// Protocol. Tool handlers call the internal services directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stageflow/internal/knowledge"
	"github.com/fyrsmithlabs/stageflow/internal/reference"
	"github.com/fyrsmithlabs/stageflow/internal/services"
	"github.com/fyrsmithlabs/stageflow/internal/workflow"
)

// Server exposes workflow orchestration and knowledge transfer tools
// over the stdio MCP transport.
type Server struct {
	mcp        *mcp.Server
	workflows  *workflow.Manager
	references *reference.Registry
	rules      *knowledge.RuleSet
	metrics    *Metrics
	logger     *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "stageflow")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "stageflow",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server backed by the given service registry.
func NewServer(cfg *Config, reg services.Registry) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if reg == nil {
		return nil, fmt.Errorf("service registry is required")
	}
	if reg.Workflows() == nil {
		return nil, fmt.Errorf("workflow manager is required")
	}
	if reg.References() == nil {
		return nil, fmt.Errorf("reference registry is required")
	}
	if reg.Rules() == nil {
		return nil, fmt.Errorf("transfer rules are required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:        mcpServer,
		workflows:  reg.Workflows(),
		references: reg.References(),
		rules:      reg.Rules(),
		metrics:    NewMetrics(cfg.Logger),
		logger:     cfg.Logger,
	}
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until the
// context is canceled or the transport closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
