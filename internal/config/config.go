// Package config provides configuration loading for stageflow.
package config

import (
	"fmt"
	"time"
)

// Config is the root stageflow configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig configures the optional HTTP ops server.
type ServerConfig struct {
	// HTTPEnabled starts the read-only HTTP surface alongside MCP stdio.
	HTTPEnabled bool   `koanf:"http_enabled"`
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
}

// Store backends.
const (
	StoreBackendMemory = "memory"
	StoreBackendNATS   = "nats"
)

// StoreConfig selects and configures the external knowledge store.
type StoreConfig struct {
	// Backend is "memory" or "nats".
	Backend string `koanf:"backend"`

	// NATSURL is the broker address for the nats backend.
	NATSURL string `koanf:"nats_url"`

	// NATSToken authenticates to the broker when set.
	NATSToken Secret `koanf:"nats_token"`

	// BucketPrefix namespaces the key-value buckets.
	BucketPrefix string `koanf:"bucket_prefix"`

	// Timeout bounds each store operation.
	Timeout Duration `koanf:"timeout"`
}

// WorkflowConfig configures the workflow manager.
type WorkflowConfig struct {
	// FailOpen keeps orchestration available when the store is not:
	// persistence failures are logged and swallowed. Set false to surface
	// them to callers instead.
	FailOpen bool `koanf:"fail_open"`

	// AuditDecisions emits decision records on creation and stage
	// transitions.
	AuditDecisions bool `koanf:"audit_decisions"`
}

// EventsConfig configures lifecycle event publication.
type EventsConfig struct {
	// Enabled publishes workflow lifecycle events to NATS. Requires the
	// nats store backend or a reachable broker at NATSURL.
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig configures the logger. Kept as plain values here; the
// logging package owns the richer zap-level config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"` // "grpc" or "http"
	Insecure       bool    `koanf:"insecure"`
	SampleRatio    float64 `koanf:"sample_ratio"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPEnabled: false,
			Host:        "localhost",
			Port:        9820,
		},
		Store: StoreConfig{
			Backend:      StoreBackendMemory,
			NATSURL:      "nats://localhost:4222",
			BucketPrefix: "stageflow",
			Timeout:      Duration(5 * time.Second),
		},
		Workflow: WorkflowConfig{
			FailOpen:       true,
			AuditDecisions: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			ServiceName:    "stageflow",
			ServiceVersion: "dev",
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			SampleRatio:    1.0,
		},
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendMemory, StoreBackendNATS:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q",
			StoreBackendMemory, StoreBackendNATS, c.Store.Backend)
	}
	if c.Store.Backend == StoreBackendNATS && c.Store.NATSURL == "" {
		return fmt.Errorf("store.nats_url is required for the nats backend")
	}
	if c.Events.Enabled && c.Store.NATSURL == "" {
		return fmt.Errorf("store.nats_url is required when events are enabled")
	}
	if c.Server.HTTPEnabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be \"grpc\" or \"http\", got %q", c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be in [0, 1], got %v", c.Telemetry.SampleRatio)
	}
	return nil
}
