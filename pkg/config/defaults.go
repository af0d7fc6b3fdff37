package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/marmos91/dittosmb/pkg/smb/client"
	"github.com/marmos91/dittosmb/pkg/smb/handle"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
)

// Default server and transport settings.
const (
	DefaultListenAddress = "127.0.0.1:4450"
	DefaultMetricsPort   = 9090
	DefaultDialTimeout   = 10 * time.Second
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans that default to true come from GetDefaultConfig or the loader
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyEngineDefaults(&cfg.Engine)
	applyTransportDefaults(&cfg.Transport)
	applyServerDefaults(&cfg.Server)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// applyEngineDefaults sets compound engine defaults.
//
// MaxReplays and CreditLowWater keep an explicit zero: no replays, and a
// prefetch that never throttles.
func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = client.DefaultRequestTimeout
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = handle.DefaultCloseTimeout
	}
	if cfg.AsyncDepth == 0 {
		cfg.AsyncDepth = client.DefaultAsyncDepth
	}
	if cfg.MaxReadSize == 0 {
		cfg.MaxReadSize = bytesize.ByteSize(client.DefaultMaxIOSize)
	}
	if cfg.MaxWriteSize == 0 {
		cfg.MaxWriteSize = bytesize.ByteSize(client.DefaultMaxIOSize)
	}
	if cfg.DurableTimeout == 0 {
		cfg.DurableTimeout = client.DefaultDurableTimeout
	}
	if cfg.SecondaryStream == "" {
		cfg.SecondaryStream = client.DefaultSecondaryStream
	}
	if cfg.SecondaryStreamSize == 0 {
		cfg.SecondaryStreamSize = client.DefaultSecondaryStreamSize
	}
}

// applyTransportDefaults sets client transport defaults.
func applyTransportDefaults(cfg *TransportConfig) {
	if cfg.Address == "" {
		cfg.Address = DefaultListenAddress
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.InitialCredits == 0 {
		cfg.InitialCredits = transport.DefaultInitialCredits
	}
}

// applyServerDefaults sets in-memory server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListenAddress
	}
}

// setViperDefaults registers the settings whose zero value is meaningful,
// so that a file leaving them out still gets the default rather than zero.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("engine.max_replays", client.DefaultMaxReplays)
	v.SetDefault("engine.credit_low_water", client.DefaultCreditLowWater)
	v.SetDefault("engine.directory_leases", true)
	v.SetDefault("engine.durable_handles", true)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("transport.reconnect", true)
	v.SetDefault("server.directory_leasing", true)
	v.SetDefault("server.durable_handles", true)
	v.SetDefault("server.reparse_ioctl", true)
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Running without a configuration file
func GetDefaultConfig() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Insecure: true,
		},
		Engine: EngineConfig{
			MaxReplays:      client.DefaultMaxReplays,
			CreditLowWater:  client.DefaultCreditLowWater,
			DirectoryLeases: true,
			DurableHandles:  true,
		},
		Transport: TransportConfig{
			Reconnect: true,
		},
		Server: ServerConfig{
			DirectoryLeasing: true,
			DurableHandles:   true,
			ReparseIoctl:     true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
