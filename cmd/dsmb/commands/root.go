// Package commands implements the dsmb command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dsmb/commands/config"
	"github.com/marmos91/dittosmb/cmd/dsmb/commands/exec"
	"github.com/marmos91/dittosmb/internal/cli/output"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	outputFormat = output.FormatTable
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dsmb",
	Short: "dsmb - SMB2/3 compound request engine",
	Long: `dsmb runs filesystem operations as SMB2/3 compound requests.

Every operation opens, acts on and closes its target in a single round trip,
replays itself when the connection is re-established under it, and never
leaves a server handle behind.

The serve command starts an in-memory SMB2 server to try the engine against.

Use "dsmb [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	exec.Version = Version
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dsmb/config.yaml)")
	rootCmd.PersistentFlags().VarP(&outputFormat, "output", "o", "Output format (table|json|yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(exec.Cmd)
	rootCmd.AddCommand(config.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
