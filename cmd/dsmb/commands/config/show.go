package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/pkg/config"
)

var showOutput = output.FormatYAML

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current dsmb configuration with defaults applied.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show default config as YAML
  dsmb config show

  # Show as JSON
  dsmb config show --output json

  # Show specific config file
  dsmb config show --config /etc/dsmb/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().VarP(&showOutput, "output", "o", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	switch showOutput {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	default:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	}
}
