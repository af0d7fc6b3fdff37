package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_EngineBounds(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Config)
		field string
	}{
		{"zero async depth", func(c *Config) { c.Engine.AsyncDepth = 0 }, "Engine.AsyncDepth"},
		{"negative replays", func(c *Config) { c.Engine.MaxReplays = -1 }, "Engine.MaxReplays"},
		{"zero request timeout", func(c *Config) { c.Engine.RequestTimeout = 0 }, "Engine.RequestTimeout"},
		{"oversized read", func(c *Config) { c.Engine.MaxReadSize = 16 << 20 }, "Engine.MaxReadSize"},
		{"stream with colon", func(c *Config) { c.Engine.SecondaryStream = "a:b" }, "Engine.SecondaryStream"},
		{"empty stream", func(c *Config) { c.Engine.SecondaryStream = "" }, "Engine.SecondaryStream"},
		{"bad listen", func(c *Config) { c.Server.Listen = "nowhere" }, "Server.Listen"},
		{"zero credits", func(c *Config) { c.Transport.InitialCredits = 0 }, "Transport.InitialCredits"},
		{"unknown profile type", func(c *Config) { c.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heap"} }, "Telemetry.Profiling.ProfileTypes"},
		{"profiling without endpoint", func(c *Config) {
			c.Telemetry.Profiling.Enabled = true
			c.Telemetry.Profiling.Endpoint = ""
		}, "Telemetry.Profiling.Endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.apply(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error about %s, got: %v", tt.field, err)
			}
		})
	}
}

func TestValidate_CreditLowWaterBelowDepth(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Engine.AsyncDepth = 32
	cfg.Engine.CreditLowWater = 4

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for credit low water below async depth")
	}
	if !strings.Contains(err.Error(), "credit_low_water") {
		t.Errorf("Expected error about credit_low_water, got: %v", err)
	}

	// Zero disables throttling and is always accepted.
	cfg.Engine.CreditLowWater = 0
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected zero low water to pass, got: %v", err)
	}
}

func TestValidate_InitialCreditsCoverLargestCompound(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Expected default config to pass, got: %v", err)
	}

	// CREATE + 4 READs of 1MiB at 16 credits each + CLOSE.
	cfg.Transport.InitialCredits = 65
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for a window below 66 credits")
	}
	if !strings.Contains(err.Error(), "initial_credits") {
		t.Errorf("Expected error about initial_credits, got: %v", err)
	}

	cfg.Transport.InitialCredits = 66
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected 66 credits to pass, got: %v", err)
	}

	// Larger I/O raises the requirement.
	cfg.Engine.MaxWriteSize = 4 << 20
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error once 4MiB writes need 258 credits")
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "telemetry.endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}

		// Validation does not normalize
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
