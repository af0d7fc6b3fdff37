package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/internal/cli/setup"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/client"
)

var (
	touchTime string

	attribReadonly bool
	attribHidden   bool
	attribSystem   bool
	attribArchive  bool
)

var touchCmd = &cobra.Command{
	Use:   "touch PATH",
	Short: "Create a file or update its access and write times",
	Long: `Create PATH when it does not exist, then set its last access and last
write times to now, or to --time.

Examples:
  dsmb exec touch docs/new.txt
  dsmb exec touch docs/new.txt --time 2024-01-02T15:04:05Z`,
	Args: cobra.ExactArgs(1),
	RunE: runTouch,
}

var attribCmd = &cobra.Command{
	Use:   "attrib PATH",
	Short: "Set the DOS attributes of a file or directory",
	Long: `Set or clear the read-only, hidden, system and archive attributes of
PATH. Only the flags given on the command line change.

Examples:
  # Make a file read-only and hidden
  dsmb exec attrib docs/readme.txt --readonly --hidden

  # Clear the archive bit
  dsmb exec attrib docs/readme.txt --archive=false`,
	Args: cobra.ExactArgs(1),
	RunE: runAttrib,
}

func init() {
	touchCmd.Flags().StringVar(&touchTime, "time", "", "RFC 3339 time to set (default: now)")

	attribCmd.Flags().BoolVar(&attribReadonly, "readonly", false, "Read-only attribute")
	attribCmd.Flags().BoolVar(&attribHidden, "hidden", false, "Hidden attribute")
	attribCmd.Flags().BoolVar(&attribSystem, "system", false, "System attribute")
	attribCmd.Flags().BoolVar(&attribArchive, "archive", false, "Archive attribute")
}

func runTouch(cmd *cobra.Command, args []string) error {
	path := firstArg(args)

	when := time.Now()
	if touchTime != "" {
		t, err := time.Parse(time.RFC3339, touchTime)
		if err != nil {
			return fmt.Errorf("invalid --time: %w", err)
		}
		when = t
	}

	return run(cmd, func(ctx context.Context, c *setup.Client) error {
		if _, err := c.Session.OpenCreate(ctx, client.OpenRequest{
			Path:        path,
			Access:      types.FileReadAttributes | types.Synchronize,
			Disposition: types.FileOpenIf,
		}); err != nil {
			return err
		}
		if err := c.Session.SetTimes(ctx, path, when, when); err != nil {
			return err
		}
		c.Printer.Success(fmt.Sprintf("Touched %s at %s", path, when.Local().Format(output.LocalTimeFormat)))
		return nil
	})
}

func runAttrib(cmd *cobra.Command, args []string) error {
	path := firstArg(args)

	flags := []struct {
		name string
		set  bool
		attr types.FileAttributes
	}{
		{"readonly", attribReadonly, types.FileAttributeReadonly},
		{"hidden", attribHidden, types.FileAttributeHidden},
		{"system", attribSystem, types.FileAttributeSystem},
		{"archive", attribArchive, types.FileAttributeArchive},
	}
	changed := false
	for _, f := range flags {
		changed = changed || cmd.Flags().Changed(f.name)
	}
	if !changed {
		return fmt.Errorf("no attribute flag given")
	}

	return run(cmd, func(ctx context.Context, c *setup.Client) error {
		info, err := c.Session.Stat(ctx, path)
		if err != nil {
			return err
		}
		attrs := info.Basic.FileAttributes &^ types.FileAttributeNormal
		for _, f := range flags {
			if !cmd.Flags().Changed(f.name) {
				continue
			}
			if f.set {
				attrs |= f.attr
			} else {
				attrs &^= f.attr
			}
		}
		if err := c.Session.SetAttributes(ctx, path, attrs); err != nil {
			return err
		}
		c.Printer.Success(fmt.Sprintf("%s %s", output.FormatAttributes(attrs), path))
		return nil
	})
}
