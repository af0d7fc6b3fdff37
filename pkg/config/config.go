package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/dittosmb/internal/bytesize"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "DSMB"

// Config represents the dsmb configuration.
//
// It captures the static settings of the compound engine and its tooling:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Metrics endpoint
//   - Engine tunables (timeouts, replays, prefetch depth, leasing)
//   - Transport settings used by the client commands
//   - The in-memory test server started by 'dsmb serve'
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DSMB_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Engine contains the compound engine tunables
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`

	// Transport configures the connection used by client commands
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`

	// Server configures the in-memory SMB2 server
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, one span per compound is exported to an OTLP-compatible
// collector (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling of the serve and
// bench commands. Disabled, it starts nothing.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect: cpu, alloc_objects,
	// alloc_space, inuse_objects, inuse_space, goroutines, mutex_count,
	// mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// EngineConfig holds the compound engine tunables. It maps onto
// client.Config, see ClientConfig.
type EngineConfig struct {
	// RequestTimeout bounds every compound exchange. Expiry is terminal.
	// Default: 30s
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0" yaml:"request_timeout"`

	// MaxReplays is the number of rebuilds after the transport reconnected
	// under an outstanding compound.
	// Default: 3
	MaxReplays int `mapstructure:"max_replays" validate:"gte=0,lte=16" yaml:"max_replays"`

	// CloseTimeout bounds the fallback CLOSE of a handle a compound left open.
	// Default: 5s
	CloseTimeout time.Duration `mapstructure:"close_timeout" validate:"gt=0" yaml:"close_timeout"`

	// AsyncDepth is the number of prefetch compounds kept in flight.
	// Default: 8
	AsyncDepth int `mapstructure:"async_depth" validate:"min=1,max=64" yaml:"async_depth"`

	// CreditLowWater is the credit balance under which a prefetch batch
	// runs one compound at a time.
	// Default: 16
	CreditLowWater int `mapstructure:"credit_low_water" validate:"gte=0" yaml:"credit_low_water"`

	// MaxReadSize and MaxWriteSize cap the payload of a single READ or WRITE.
	// Supports human-readable formats: "64Ki", "1Mi"
	// Default: 1Mi
	MaxReadSize  bytesize.ByteSize `mapstructure:"max_read_size" validate:"gt=0,lte=8388608" yaml:"max_read_size"`
	MaxWriteSize bytesize.ByteSize `mapstructure:"max_write_size" validate:"gt=0,lte=8388608" yaml:"max_write_size"`

	// DirectoryLeases requests a read/handle lease on opened directories.
	DirectoryLeases bool `mapstructure:"directory_leases" yaml:"directory_leases"`

	// DurableHandles requests durable handles for opens that keep their handle.
	DurableHandles bool `mapstructure:"durable_handles" yaml:"durable_handles"`

	// DurableTimeout is the reconnect window requested for durable handles.
	// Default: 60s
	DurableTimeout time.Duration `mapstructure:"durable_timeout" validate:"gt=0" yaml:"durable_timeout"`

	// SecondaryStream is the named stream read during directory prefetch.
	// Default: "AFP_AfpInfo"
	SecondaryStream string `mapstructure:"secondary_stream" validate:"required,excludesall=:\\/" yaml:"secondary_stream"`

	// SecondaryStreamSize is the number of bytes read from SecondaryStream.
	// Default: 60
	SecondaryStreamSize bytesize.ByteSize `mapstructure:"secondary_stream_size" validate:"gt=0,lte=65536" yaml:"secondary_stream_size"`
}

// TransportConfig configures the NetBIOS-framed connection of client
// commands. Session and tree ids come from an already established session.
type TransportConfig struct {
	// Address is the server address (host:port)
	// Default: "127.0.0.1:4450"
	Address string `mapstructure:"address" validate:"required,hostname_port" yaml:"address"`

	// DialTimeout bounds each connection attempt
	// Default: 10s
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gt=0" yaml:"dial_timeout"`

	// Reconnect re-dials after the connection is lost
	Reconnect bool `mapstructure:"reconnect" yaml:"reconnect"`

	// SessionID and TreeID are stamped on every request header
	SessionID uint64 `mapstructure:"session_id" yaml:"session_id"`
	TreeID    uint32 `mapstructure:"tree_id" yaml:"tree_id"`

	// InitialCredits is the credit balance assumed before the first reply
	// Default: 1
	InitialCredits int `mapstructure:"initial_credits" validate:"min=1" yaml:"initial_credits"`
}

// ServerConfig configures the in-memory SMB2 server.
type ServerConfig struct {
	// Listen is the TCP address the server accepts connections on
	// Default: "127.0.0.1:4450"
	Listen string `mapstructure:"listen" validate:"required,hostname_port" yaml:"listen"`

	// MaxGrant caps the credits granted per reply (0 grants what was asked)
	MaxGrant uint16 `mapstructure:"max_grant" yaml:"max_grant"`

	// DirectoryLeasing grants leases on directories
	DirectoryLeasing bool `mapstructure:"directory_leasing" yaml:"directory_leasing"`

	// DurableHandles grants durable handle requests
	DurableHandles bool `mapstructure:"durable_handles" yaml:"durable_handles"`

	// ReparseIoctl answers FSCTL_GET_REPARSE_POINT
	ReparseIoctl bool `mapstructure:"reparse_ioctl" yaml:"reparse_ioctl"`

	// Seed is a list of share-relative paths created at startup.
	// A trailing backslash creates a directory.
	Seed []string `mapstructure:"seed" yaml:"seed,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DSMB_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location. When no file is found the
// defaults are returned.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	return decode(v)
}

// decode unmarshals v, fills defaults and validates the result.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad is Load for commands that need a configuration file. Unlike
// Load it fails when the file is missing, and the error tells the user how
// to create one.
func MustLoad(configPath string) (*Config, error) {
	hint := "dsmb config init"
	switch {
	case configPath != "":
		hint += " --config " + configPath
	case DefaultConfigExists():
		configPath = GetDefaultConfigPath()
	default:
		return nil, fmt.Errorf("no configuration file at %s\n\nCreate one with:\n  %s\n\nor pass --config /path/to/config.yaml",
			GetDefaultConfigPath(), hint)
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("configuration file not found: %s\n\nCreate it with:\n  %s", configPath, hint)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DSMB_ prefix and underscores
	// Example: DSMB_ENGINE_ASYNC_DEPTH=16
	setViperDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dsmb/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists and reports
// whether one was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
}

// configDecodeHooks converts the string and numeric forms a file or the
// environment can hold into durations and byte sizes.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		numericByteSizeHook,
	)
}

var byteSizeType = reflect.TypeOf(bytesize.ByteSize(0))

// numericByteSizeHook accepts plain numbers for byte sizes. YAML integers
// arrive as int, JSON-style numbers as float64.
func numericByteSizeHook(from, to reflect.Type, data any) (any, error) {
	if to != byteSizeType {
		return data, nil
	}
	rv := reflect.ValueOf(data)
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return nil, fmt.Errorf("negative byte size %d", rv.Int())
		}
		return bytesize.ByteSize(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return bytesize.ByteSize(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		if rv.Float() < 0 {
			return nil, fmt.Errorf("negative byte size %v", rv.Float())
		}
		return bytesize.ByteSize(rv.Float()), nil
	default:
		return data, nil
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dsmb, falling back to
// ~/.config/dsmb and finally to the working directory.
func getConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "dsmb")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
