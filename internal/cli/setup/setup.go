// Package setup holds the bootstrap shared by dsmb commands: configuration,
// logging, tracing and the client session.
package setup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/smb/client"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
)

// ServiceName is reported to the trace backend.
const ServiceName = "dsmb"

// LoadConfig loads the file named by the --config flag, falling back to
// the defaults when no file exists.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// InitTelemetry starts tracing when the telemetry section enables it.
func InitTelemetry(ctx context.Context, cfg *config.Config, version string) (func(context.Context) error, error) {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return shutdown, nil
}

// InitProfiling starts Pyroscope profiling when the telemetry section
// enables it. tags are attached to every profile. The returned function
// stops the profiler.
func InitProfiling(cfg *config.Config, version string, tags map[string]string) (func() error, error) {
	p := cfg.Telemetry.Profiling
	stop, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        p.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: version,
		Endpoint:       p.Endpoint,
		ProfileTypes:   p.ProfileTypes,
		Tags:           tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", p.Endpoint, "profile_types", p.ProfileTypes)
	}
	return stop, nil
}

// Printer returns a printer for the --output flag.
func Printer(cmd *cobra.Command) (*output.Printer, error) {
	format := output.FormatTable
	if f := cmd.Flags().Lookup("output"); f != nil {
		parsed, err := output.ParseFormat(f.Value.String())
		if err != nil {
			return nil, err
		}
		format = parsed
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, cmd.OutOrStdout() == os.Stdout), nil
}

// Client is a connected session and what it needs torn down.
type Client struct {
	Config  *config.Config
	Session *client.Session
	Printer *output.Printer

	conn     *transport.Conn
	metrics  *http.Server
	shutdown func(context.Context) error
}

// Connect loads the configuration, sends logs to stderr unless a file is
// configured, and dials the transport section's server. With metrics
// enabled the session records into the engine collectors, served for as
// long as the client lives.
func Connect(ctx context.Context, cmd *cobra.Command, version string) (*Client, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	printer, err := Printer(cmd)
	if err != nil {
		return nil, err
	}

	shutdown, err := InitTelemetry(ctx, cfg, version)
	if err != nil {
		return nil, err
	}

	conn, err := transport.Dial(ctx, cfg.DialConfig())
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	c := &Client{
		Config:   cfg,
		Session:  client.NewSession(conn, cfg.ClientConfig(), EngineMetrics(cfg)...),
		Printer:  printer,
		conn:     conn,
		shutdown: shutdown,
	}
	if cfg.Metrics.Enabled {
		c.metrics = StartMetricsServer(cfg.Metrics.Port)
	}
	return c, nil
}

// Close ends the session, the connection, the metrics endpoint and
// tracing.
func (c *Client) Close(ctx context.Context) error {
	return errors.Join(
		c.Session.Close(),
		c.conn.Close(),
		StopMetricsServer(c.metrics, c.Config.ShutdownTimeout),
		c.shutdown(ctx),
	)
}
