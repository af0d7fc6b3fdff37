package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/marmos91/dittosmb/pkg/smb/client"
)

const sampleConfigTemplate = `# dsmb Configuration File
#
# Every setting can be overridden with an environment variable:
#   DSMB_<SECTION>_<KEY>, for example DSMB_ENGINE_ASYNC_DEPTH=16

logging:
  level: "INFO"     # DEBUG, INFO, WARN, ERROR
  format: "text"    # text, json
  output: "stdout"  # stdout, stderr, or a file path

telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
  # Pyroscope continuous profiling of 'dsmb serve' and 'dsmb bench'
  profiling:
    enabled: false
    endpoint: "http://localhost:4040"
    profile_types: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]

metrics:
  enabled: false
  port: {{.MetricsPort}}

shutdown_timeout: 30s

# Compound engine tunables
engine:
  request_timeout: {{.RequestTimeout}}
  max_replays: {{.MaxReplays}}
  close_timeout: {{.CloseTimeout}}
  async_depth: {{.AsyncDepth}}
  credit_low_water: {{.CreditLowWater}}
  max_read_size: 1Mi
  max_write_size: 1Mi
  directory_leases: true
  durable_handles: true
  durable_timeout: {{.DurableTimeout}}
  secondary_stream: "{{.SecondaryStream}}"
  secondary_stream_size: {{.SecondaryStreamSize}}

# Connection used by 'dsmb exec' and 'dsmb bench'
transport:
  address: "{{.Listen}}"
  dial_timeout: 10s
  reconnect: true
  session_id: 0
  tree_id: 0
  initial_credits: 128

# In-memory server started by 'dsmb serve'
server:
  listen: "{{.Listen}}"
  max_grant: 0
  directory_leasing: true
  durable_handles: true
  reparse_ioctl: true
`

type sampleValues struct {
	MetricsPort         int
	RequestTimeout      string
	MaxReplays          int
	CloseTimeout        string
	AsyncDepth          int
	CreditLowWater      int
	DurableTimeout      string
	SecondaryStream     string
	SecondaryStreamSize int
	Listen              string
}

// GenerateSampleConfig renders the commented sample configuration.
func GenerateSampleConfig() ([]byte, error) {
	d := GetDefaultConfig()
	values := sampleValues{
		MetricsPort:         d.Metrics.Port,
		RequestTimeout:      d.Engine.RequestTimeout.String(),
		MaxReplays:          d.Engine.MaxReplays,
		CloseTimeout:        d.Engine.CloseTimeout.String(),
		AsyncDepth:          d.Engine.AsyncDepth,
		CreditLowWater:      d.Engine.CreditLowWater,
		DurableTimeout:      d.Engine.DurableTimeout.String(),
		SecondaryStream:     client.DefaultSecondaryStream,
		SecondaryStreamSize: client.DefaultSecondaryStreamSize,
		Listen:              DefaultListenAddress,
	}

	tmpl, err := template.New("config").Parse(sampleConfigTemplate)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// InitConfig writes the sample configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := GenerateSampleConfig()
	if err != nil {
		return fmt.Errorf("failed to render sample config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
