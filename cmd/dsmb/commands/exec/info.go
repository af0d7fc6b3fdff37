package exec

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/internal/cli/setup"
)

var statCmd = &cobra.Command{
	Use:   "stat PATH",
	Short: "Show the metadata of a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := firstArg(args)
		return run(cmd, func(ctx context.Context, c *setup.Client) error {
			info, err := c.Session.Stat(ctx, path)
			if err != nil {
				return err
			}
			if c.Printer.Structured() {
				return c.Printer.Print(info)
			}
			return output.SimpleTable(cmd.OutOrStdout(), output.StatPairs(displayPath(path), info))
		})
	},
}

var streamsCmd = &cobra.Command{
	Use:   "streams PATH",
	Short: "List the data streams of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := firstArg(args)
		return run(cmd, func(ctx context.Context, c *setup.Client) error {
			streams, err := c.Session.ListStreams(ctx, path)
			if err != nil {
				return err
			}
			return c.Printer.Print(output.StreamList(streams))
		})
	},
}

var readlinkCmd = &cobra.Command{
	Use:   "readlink PATH",
	Short: "Print the target of a symbolic link",
	Long: `Print the target of a symbolic link.

The target is read with FSCTL_GET_REPARSE_POINT. Against a server that
rejects the IOCTL the session falls back to opening the link and decoding
the target from the STATUS_STOPPED_ON_SYMLINK error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := firstArg(args)
		return run(cmd, func(ctx context.Context, c *setup.Client) error {
			target, err := c.Session.ReadSymlink(ctx, path)
			if err != nil {
				return err
			}
			if c.Printer.Structured() {
				return c.Printer.Print(map[string]string{"path": path, "target": target})
			}
			c.Printer.Printf("%s\n", target)
			return nil
		})
	},
}
