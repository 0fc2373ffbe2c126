package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stageflow/internal/config"
	"github.com/fyrsmithlabs/stageflow/internal/http"
	"github.com/fyrsmithlabs/stageflow/internal/knowledge"
	"github.com/fyrsmithlabs/stageflow/internal/logging"
	"github.com/fyrsmithlabs/stageflow/internal/mcp"
	"github.com/fyrsmithlabs/stageflow/internal/reference"
	"github.com/fyrsmithlabs/stageflow/internal/services"
	"github.com/fyrsmithlabs/stageflow/internal/store"
	"github.com/fyrsmithlabs/stageflow/internal/telemetry"
	"github.com/fyrsmithlabs/stageflow/internal/workflow"
)

const shutdownGrace = 10 * time.Second

// runDaemon initializes all services and blocks until a signal arrives
// or the MCP transport closes.
//
//  1. Load and validate configuration
//  2. Initialize telemetry and the logger
//  3. Connect to NATS when the store backend or event publishing needs it
//  4. Build the store, workflow manager, and reference registry
//  5. Serve MCP on stdio, plus the HTTP API when enabled
//  6. Shut down gracefully on SIGINT/SIGTERM
func runDaemon(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: 15 * time.Second,
		ShutdownGrace:  shutdownGrace,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Zap()

	zl.Info("starting stageflowd",
		zap.String("version", version),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("http_enabled", cfg.Server.HTTPEnabled),
		zap.Bool("events_enabled", cfg.Events.Enabled),
	)

	// NATS is needed for the durable store backend and for event publishing.
	var nc *nats.Conn
	if cfg.Store.Backend == config.StoreBackendNATS || cfg.Events.Enabled {
		nc, err = connectNATS(cfg, zl)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nc.Drain() //nolint:errcheck
	}

	st, err := buildStore(cfg, nc, zl)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	rules := knowledge.DefaultRules()

	refs, err := reference.NewRegistry(st, zl)
	if err != nil {
		return fmt.Errorf("initializing reference registry: %w", err)
	}

	var mgrOpts []workflow.Option
	if cfg.Events.Enabled {
		mgrOpts = append(mgrOpts, workflow.WithEventPublisher(workflow.NewNATSPublisher(nc)))
	}
	mgr, err := workflow.NewManager(&workflow.Config{
		FailOpen:       cfg.Workflow.FailOpen,
		StoreTimeout:   cfg.Store.Timeout.Duration(),
		AuditDecisions: cfg.Workflow.AuditDecisions,
	}, workflow.NewMemoryRepository(), st, rules, zl, mgrOpts...)
	if err != nil {
		return fmt.Errorf("initializing workflow manager: %w", err)
	}

	registry := services.NewRegistry(services.Options{
		Workflows:  mgr,
		References: refs,
		Rules:      rules,
		Store:      st,
	})

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:    "stageflow",
		Version: version,
		Logger:  zl,
	}, registry)
	if err != nil {
		return fmt.Errorf("initializing MCP server: %w", err)
	}

	var httpServer *http.Server
	if cfg.Server.HTTPEnabled {
		httpServer, err = http.NewServer(registry, zl, &http.Config{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		})
		if err != nil {
			return fmt.Errorf("initializing HTTP server: %w", err)
		}
		go func() {
			if err := httpServer.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				zl.Error("http server failed", zap.Error(err))
			}
		}()
	}

	// Blocks until the context is canceled or stdin closes.
	runErr := mcpServer.Run(ctx)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			zl.Error("http server shutdown failed", zap.Error(err))
		}
	}

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	zl.Info("stageflowd shutdown complete")
	return nil
}

// initLogger builds the process logger from the flat logging config,
// bridging to OTEL when both sides are enabled.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logCfg.Level = level
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	logCfg.Output.OTEL = cfg.Logging.OTEL

	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

func connectNATS(cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("stageflowd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if token := cfg.Store.NATSToken.Value(); token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(cfg.Store.NATSURL, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to nats", zap.String("url", nc.ConnectedUrl()))
	return nc, nil
}

func buildStore(cfg *config.Config, nc *nats.Conn, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendNATS:
		return store.NewKV(nc, &store.KVConfig{
			BucketPrefix: cfg.Store.BucketPrefix,
			Timeout:      cfg.Store.Timeout.Duration(),
		}, logger)
	default:
		logger.Warn("using in-memory store, workflow state will not survive restarts")
		return store.NewMemory(), nil
	}
}
