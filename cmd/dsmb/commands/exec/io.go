package exec

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/marmos91/dittosmb/internal/cli/setup"
)

// catChunk is the length asked of each ReadStream call.
const catChunk = 4 * bytesize.MiB

var (
	ioStream string
	ioOffset uint64
	catLen   string
	putFile  string
)

var catCmd = &cobra.Command{
	Use:   "cat PATH",
	Short: "Write the contents of a file or stream to stdout",
	Long: `Write the contents of a file, or of one of its named streams, to stdout.

Each read is a CREATE+READ+CLOSE compound carrying up to four READs.

Examples:
  # Print a file
  dsmb exec cat docs/readme.txt

  # Print the first kilobyte of a named stream
  dsmb exec cat docs/readme.txt --stream Zone.Identifier --length 1KiB`,
	Args: cobra.ExactArgs(1),
	RunE: runCat,
}

var putCmd = &cobra.Command{
	Use:   "put PATH",
	Short: "Write stdin or a local file into a file or stream",
	Long: `Write stdin, or the local file named by --file, into PATH at --offset.
The file, or named stream, is created when missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runPut,
}

var truncateCmd = &cobra.Command{
	Use:   "truncate PATH SIZE",
	Short: "Set the end of file of a file",
	Long: `Set the end of file of PATH. SIZE accepts units such as 4KiB or 1Mi.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runTruncate,
}

func init() {
	for _, c := range []*cobra.Command{catCmd, putCmd} {
		c.Flags().StringVar(&ioStream, "stream", "", "Named stream to use instead of the file data")
		c.Flags().Uint64Var(&ioOffset, "offset", 0, "Byte offset to start at")
	}
	catCmd.Flags().StringVar(&catLen, "length", "", "Bytes to read (default: to end of file)")
	putCmd.Flags().StringVarP(&putFile, "file", "f", "", "Local file to upload (default: stdin)")
}

func runCat(cmd *cobra.Command, args []string) error {
	path := firstArg(args)

	limit := int64(-1)
	if catLen != "" {
		n, err := bytesize.ParseByteSize(catLen)
		if err != nil {
			return fmt.Errorf("invalid --length: %w", err)
		}
		limit = n.Int64()
	}

	return run(cmd, func(ctx context.Context, c *setup.Client) error {
		out := cmd.OutOrStdout()
		off := ioOffset
		for limit != 0 {
			want := int(catChunk)
			if limit > 0 && limit < int64(want) {
				want = int(limit)
			}
			data, err := c.Session.ReadStream(ctx, path, ioStream, off, want)
			if len(data) > 0 {
				if _, werr := out.Write(data); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			off += uint64(len(data))
			if limit > 0 {
				limit -= int64(len(data))
			}
			if len(data) < want {
				return nil
			}
		}
		return nil
	})
}

func runPut(cmd *cobra.Command, args []string) error {
	path := firstArg(args)

	var in io.Reader = cmd.InOrStdin()
	if putFile != "" {
		f, err := os.Open(putFile)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	return run(cmd, func(ctx context.Context, c *setup.Client) error {
		n, err := c.Session.WriteStream(ctx, path, ioStream, ioOffset, data)
		if err != nil {
			return fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), err)
		}
		c.Printer.Success(fmt.Sprintf("Wrote %s to %s", bytesize.ByteSize(n), path))
		return nil
	})
}

func runTruncate(cmd *cobra.Command, args []string) error {
	path := firstArg(args)
	size, err := bytesize.ParseByteSize(args[1])
	if err != nil {
		return fmt.Errorf("invalid size: %w", err)
	}
	return run(cmd, func(ctx context.Context, c *setup.Client) error {
		if err := c.Session.Truncate(ctx, path, size.Uint64()); err != nil {
			return err
		}
		c.Printer.Success(fmt.Sprintf("Truncated %s to %s", path, size))
		return nil
	})
}
