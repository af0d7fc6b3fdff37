package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittosmb/internal/bytesize"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

engine:
  async_depth: 4
  max_read_size: 64Ki
  request_timeout: 5s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level normalized to 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Engine.AsyncDepth != 4 {
		t.Errorf("Expected async_depth 4, got %d", cfg.Engine.AsyncDepth)
	}
	if cfg.Engine.MaxReadSize != 64*bytesize.KiB {
		t.Errorf("Expected max_read_size 64Ki, got %v", cfg.Engine.MaxReadSize)
	}
	if cfg.Engine.RequestTimeout != 5*time.Second {
		t.Errorf("Expected request_timeout 5s, got %v", cfg.Engine.RequestTimeout)
	}
	if cfg.Engine.MaxWriteSize != bytesize.MiB {
		t.Errorf("Expected default max_write_size 1Mi, got %v", cfg.Engine.MaxWriteSize)
	}
}

func TestLoad_KeepsDefaultsForOmittedSwitches(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
engine:
  async_depth: 16
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.Engine.DirectoryLeases || !cfg.Engine.DurableHandles {
		t.Error("Expected leasing switches to default to true")
	}
	if cfg.Engine.MaxReplays != 3 {
		t.Errorf("Expected default max_replays 3, got %d", cfg.Engine.MaxReplays)
	}
	if !cfg.Transport.Reconnect {
		t.Error("Expected transport.reconnect to default to true")
	}
}

func TestLoad_ExplicitZeroReplays(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
engine:
  max_replays: 0
  directory_leases: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Engine.MaxReplays != 0 {
		t.Errorf("Expected max_replays 0, got %d", cfg.Engine.MaxReplays)
	}
	if cfg.Engine.DirectoryLeases {
		t.Error("Expected directory_leases false")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Server.Listen != DefaultListenAddress {
		t.Errorf("Expected default listen address, got %q", cfg.Server.Listen)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
engine:
  async_depth: 500
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for async_depth out of range")
	}
}

func TestLoad_ByteSizeForms(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
engine:
  max_read_size: 65536
  max_write_size: 2Mi
  secondary_stream_size: "128"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Engine.MaxReadSize != 64*bytesize.KiB {
		t.Errorf("Expected numeric max_read_size 64Ki, got %d", cfg.Engine.MaxReadSize)
	}
	if cfg.Engine.MaxWriteSize != 2*bytesize.MiB {
		t.Errorf("Expected max_write_size 2Mi, got %d", cfg.Engine.MaxWriteSize)
	}
	if cfg.Engine.SecondaryStreamSize != 128 {
		t.Errorf("Expected secondary_stream_size 128, got %d", cfg.Engine.SecondaryStreamSize)
	}
}

func TestLoad_NegativeByteSize(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
engine:
  max_read_size: -1
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for a negative byte size")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[engine]
close_timeout = "2s"
secondary_stream = "com.apple.ResourceFork"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Engine.CloseTimeout != 2*time.Second {
		t.Errorf("Expected close_timeout 2s, got %v", cfg.Engine.CloseTimeout)
	}
	if cfg.Engine.SecondaryStream != "com.apple.ResourceFork" {
		t.Errorf("Expected secondary stream override, got %q", cfg.Engine.SecondaryStream)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected default metrics port %d, got %d", DefaultMetricsPort, cfg.Metrics.Port)
	}
	if cfg.Engine.SecondaryStream != "AFP_AfpInfo" {
		t.Errorf("Expected default secondary stream, got %q", cfg.Engine.SecondaryStream)
	}
	if cfg.Engine.SecondaryStreamSize != 60 {
		t.Errorf("Expected default secondary stream size 60, got %v", cfg.Engine.SecondaryStreamSize)
	}
}

func TestClientConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Engine.MaxReadSize = 64 * bytesize.KiB
	cfg.Engine.MaxReplays = 1

	cc := cfg.ClientConfig()
	if cc.MaxReadSize != 65536 {
		t.Errorf("Expected MaxReadSize 65536, got %d", cc.MaxReadSize)
	}
	if cc.MaxReplays != 1 {
		t.Errorf("Expected MaxReplays 1, got %d", cc.MaxReplays)
	}
	if cc.SecondaryStreamSize != 60 {
		t.Errorf("Expected SecondaryStreamSize 60, got %d", cc.SecondaryStreamSize)
	}
	if !cc.DirectoryLeases {
		t.Error("Expected DirectoryLeases to carry over")
	}

	dc := cfg.DialConfig()
	if dc.Address != DefaultListenAddress {
		t.Errorf("Expected dial address %q, got %q", DefaultListenAddress, dc.Address)
	}
	if dc.RequestTimeout != cfg.Engine.RequestTimeout {
		t.Errorf("Expected dial request timeout %v, got %v", cfg.Engine.RequestTimeout, dc.RequestTimeout)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if filepath.Base(getConfigDir()) != "dsmb" {
		t.Errorf("Expected directory name 'dsmb', got %q", filepath.Base(getConfigDir()))
	}
	if DefaultConfigExists() {
		t.Error("Expected no config in an empty config home")
	}
}

func TestMustLoad(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := MustLoad(""); err == nil || !strings.Contains(err.Error(), "dsmb config init") {
		t.Errorf("Expected an init hint without a default config, got %v", err)
	}

	missing := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := MustLoad(missing); err == nil || !strings.Contains(err.Error(), "--config "+missing) {
		t.Errorf("Expected a hint naming %s, got %v", missing, err)
	}

	path := writeConfig(t, "config.yaml", "engine:\n  async_depth: 2\n")
	cfg, err := MustLoad(path)
	if err != nil {
		t.Fatalf("MustLoad(%s) failed: %v", path, err)
	}
	if cfg.Engine.AsyncDepth != 2 {
		t.Errorf("Expected async_depth 2, got %d", cfg.Engine.AsyncDepth)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DSMB_LOGGING_LEVEL", "ERROR")
	t.Setenv("DSMB_ENGINE_ASYNC_DEPTH", "12")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

engine:
  async_depth: 4
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Engine.AsyncDepth != 12 {
		t.Errorf("Expected async_depth 12 from env var, got %d", cfg.Engine.AsyncDepth)
	}
}

func TestWatch(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "engine:\n  async_depth: 4\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	cfg, err := Watch(ctx, configPath, func(c *Config) { changes <- c })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if cfg.Engine.AsyncDepth != 4 {
		t.Fatalf("Expected initial async_depth 4, got %d", cfg.Engine.AsyncDepth)
	}

	// An invalid revision is skipped.
	if err := os.WriteFile(configPath, []byte("engine:\n  async_depth: 500\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(configPath, []byte("engine:\n  async_depth: 16\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Engine.AsyncDepth == 500 {
				t.Fatal("Invalid revision was delivered")
			}
			if c.Engine.AsyncDepth == 16 {
				return
			}
		case <-deadline:
			t.Fatal("Reloaded config was not delivered")
		}
	}
}
