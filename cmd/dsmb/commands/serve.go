package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/setup"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smbtest"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

var (
	listenAddr string
	seedPaths  []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an in-memory SMB2 server",
	Long: `Start an in-memory SMB2 server that the exec commands can talk to.

The server answers NetBIOS-framed SMB2 on the address in server.listen. Its
share starts with the paths listed in server.seed; a path ending in a
backslash is created as a directory.

The logging level follows edits to the configuration file while the server
runs.

Examples:
  # Start with the defaults
  dsmb serve

  # Listen elsewhere and seed a few paths
  dsmb serve --listen 127.0.0.1:14450 --seed 'docs\' --seed 'docs\readme.txt'`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Address to listen on (default: server.listen)")
	serveCmd.Flags().StringSliceVar(&seedPaths, "seed", nil, "Extra path to create on start (repeatable)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := setup.InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := setup.InitTelemetry(ctx, cfg, Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingStop, err := setup.InitProfiling(cfg, Version, map[string]string{"command": "serve"})
	if err != nil {
		return err
	}
	defer func() {
		if err := profilingStop(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	srv := smbtest.NewServer(serverOptions(&cfg.Server))
	seeds := append(append([]string(nil), cfg.Server.Seed...), seedPaths...)
	if err := seedServer(srv, seeds); err != nil {
		return err
	}

	addr := cfg.Server.Listen
	if listenAddr != "" {
		addr = listenAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logger.Info("SMB2 server listening", "address", ln.Addr().String(), "seeded", len(seeds))

	// The in-memory server runs no client session, so only the runtime
	// and process collectors are exposed.
	var metricsServer *http.Server
	if config.InitializeRegistry(cfg) {
		metricsServer = setup.StartMetricsServer(cfg.Metrics.Port)
	}

	// The log level follows the file; other sections apply on restart.
	if _, err := config.Watch(ctx, GetConfigFile(), func(next *config.Config) {
		logger.SetLevel(next.Logging.Level)
		logger.Info("Logging level updated", "level", logger.GetLevel())
	}); err != nil {
		logger.Warn("Configuration watch disabled", logger.KeyError, err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx, ln)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	var serveErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		select {
		case serveErr = <-serverDone:
		case <-time.After(cfg.ShutdownTimeout):
			serveErr = fmt.Errorf("server did not stop within %s", cfg.ShutdownTimeout)
		}
	case serveErr = <-serverDone:
	}

	if err := setup.StopMetricsServer(metricsServer, cfg.ShutdownTimeout); err != nil {
		logger.Error("Metrics server shutdown error", logger.KeyError, err)
	}

	if serveErr != nil {
		logger.Error("Server error", "error", serveErr)
		return serveErr
	}
	logger.Info("Server stopped")
	return nil
}

// serverOptions maps the server section onto the in-memory server.
func serverOptions(cfg *config.ServerConfig) smbtest.Options {
	return smbtest.Options{
		Leasing:           true,
		DirectoryLeasing:  cfg.DirectoryLeasing,
		DurableHandles:    cfg.DurableHandles,
		PersistentHandles: cfg.DurableHandles,
		ReparseIoctl:      cfg.ReparseIoctl,
		MaxGrant:          cfg.MaxGrant,
	}
}

// seedServer creates each path with its parents. A trailing separator
// makes a directory; anything else is an empty file.
func seedServer(srv *smbtest.Server, paths []string) error {
	for _, p := range paths {
		if strings.HasSuffix(p, `\`) || strings.HasSuffix(p, "/") {
			if err := srv.AddDirAll(p); err != nil {
				return fmt.Errorf("failed to seed %q: %w", p, err)
			}
			continue
		}
		if parent := wire.ParentPath(p); parent != "" {
			if err := srv.AddDirAll(parent); err != nil {
				return fmt.Errorf("failed to seed %q: %w", p, err)
			}
		}
		if err := srv.AddFile(p, nil); err != nil {
			return fmt.Errorf("failed to seed %q: %w", p, err)
		}
	}
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
