package telemetry

import (
	"fmt"
	"time"
)

// Transport protocols for OTLP export.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config controls OTLP export of traces and metrics.
type Config struct {
	Enabled        bool          `koanf:"enabled"`
	ServiceName    string        `koanf:"service_name"`
	ServiceVersion string        `koanf:"service_version"`
	Endpoint       string        `koanf:"endpoint"`
	Protocol       string        `koanf:"protocol"`
	Insecure       bool          `koanf:"insecure"`
	SampleRatio    float64       `koanf:"sample_ratio"`
	MetricInterval time.Duration `koanf:"metric_interval"`
	ShutdownGrace  time.Duration `koanf:"shutdown_grace"`
}

// DefaultConfig returns the defaults for local development: disabled,
// pointed at a local collector, sampling everything.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		ServiceName:    "stageflowd",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		Insecure:       true,
		SampleRatio:    1.0,
		MetricInterval: 15 * time.Second,
		ShutdownGrace:  5 * time.Second,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("telemetry: service_name is required when enabled")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint is required when enabled")
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		return fmt.Errorf("telemetry: unknown protocol %q", c.Protocol)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be in [0, 1], got %v", c.SampleRatio)
	}
	return nil
}
