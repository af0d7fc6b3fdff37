// Package exec implements the client subcommands. Each one connects to the
// server in the transport section, runs its operation as compound requests
// and disconnects.
package exec

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/setup"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
)

// Version is reported to the trace backend. The root command sets it.
var Version = "dev"

// Cmd is the exec subcommand.
var Cmd = &cobra.Command{
	Use:   "exec",
	Short: "Run filesystem operations against an SMB2 server",
	Long: `Run filesystem operations against the SMB2 server in transport.address.

Paths use either separator and are relative to the share root.

Examples:
  # List the share root
  dsmb exec ls

  # Show a file's metadata
  dsmb exec stat docs/readme.txt

  # Copy a local file in and read it back
  dsmb exec put docs/readme.txt --file README.md
  dsmb exec cat docs/readme.txt`,
}

func init() {
	Cmd.AddCommand(lsCmd)
	Cmd.AddCommand(prefetchCmd)
	Cmd.AddCommand(durableCmd)
	Cmd.AddCommand(statCmd)
	Cmd.AddCommand(streamsCmd)
	Cmd.AddCommand(readlinkCmd)
	Cmd.AddCommand(catCmd)
	Cmd.AddCommand(putCmd)
	Cmd.AddCommand(truncateCmd)
	Cmd.AddCommand(mkdirCmd)
	Cmd.AddCommand(rmCmd)
	Cmd.AddCommand(mvCmd)
	Cmd.AddCommand(touchCmd)
	Cmd.AddCommand(attribCmd)
}

// run connects, calls fn with a context cancelled on SIGINT or SIGTERM,
// and tears the session down.
func run(cmd *cobra.Command, fn func(ctx context.Context, c *setup.Client) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := setup.Connect(ctx, cmd, Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			logger.Debug("Session teardown", logger.KeyError, err)
		}
	}()

	return describe(fn(ctx, c), c.Config.Transport.Address)
}

// describe names the server on errors caused by the connection rather
// than by the operation.
func describe(err error, addr string) error {
	if err != nil && transport.IsConnectionError(err) {
		return fmt.Errorf("connection to %s: %w", addr, err)
	}
	return err
}
