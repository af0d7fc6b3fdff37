package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample dsmb configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/dsmb/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  dsmb config init

  # Initialize with custom path
  dsmb config init --config /etc/dsmb/config.yaml

  # Force overwrite existing config
  dsmb config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(configPath); err == nil && !force {
		confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s?", configPath), false)
		if errors.Is(err, prompt.ErrNotInteractive) {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", configPath)
		}
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
		force = true
	}

	if err := config.InitConfigToPath(configPath, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Point transport.address at your SMB server")
	fmt.Fprintln(out, "  2. Or start the in-memory server with: dsmb serve")
	fmt.Fprintf(out, "  3. Try it: dsmb exec ls --config %s\n", configPath)

	return nil
}
