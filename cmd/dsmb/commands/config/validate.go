package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load and validate a dsmb configuration file.

Unlike the other commands, validate fails when no configuration file exists.

Examples:
  # Validate the default config file
  dsmb config validate

  # Validate a specific file
  dsmb config validate --config /etc/dsmb/config.yaml`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration is valid: %s\n\n", configPath)
	return output.SimpleTable(out, [][2]string{
		{"Server", cfg.Transport.Address},
		{"Request timeout", cfg.Engine.RequestTimeout.String()},
		{"Max replays", fmt.Sprintf("%d", cfg.Engine.MaxReplays)},
		{"Async depth", fmt.Sprintf("%d", cfg.Engine.AsyncDepth)},
		{"Credit low water", fmt.Sprintf("%d", cfg.Engine.CreditLowWater)},
		{"Directory leases", fmt.Sprintf("%t", cfg.Engine.DirectoryLeases)},
		{"Durable handles", fmt.Sprintf("%t", cfg.Engine.DurableHandles)},
		{"Secondary stream", cfg.Engine.SecondaryStream},
		{"Serve address", cfg.Server.Listen},
		{"Metrics", metricsSummary(cfg)},
	})
}

func metricsSummary(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("enabled on :%d", cfg.Metrics.Port)
}
