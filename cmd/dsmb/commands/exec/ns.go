package exec

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/internal/cli/setup"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/client"
)

var (
	mvReplace bool
	rmForce   bool
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir DIR",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := firstArg(args)
		return run(cmd, func(ctx context.Context, c *setup.Client) error {
			_, err := c.Session.OpenCreate(ctx, client.OpenRequest{
				Path:        path,
				Access:      types.FileReadAttributes | types.Synchronize,
				Disposition: types.FileCreate,
				IsDir:       true,
			})
			if err != nil {
				return err
			}
			c.Printer.Success(fmt.Sprintf("Created %s", path))
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Delete a file or an empty directory",
	Long: `Delete a file or an empty directory. The deletion is confirmed
interactively unless --force is given; without a terminal --force is
required.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := firstArg(args)
		confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete %s?", path), rmForce)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		return run(cmd, func(ctx context.Context, c *setup.Client) error {
			if err := c.Session.Delete(ctx, path); err != nil {
				return err
			}
			c.Printer.Success(fmt.Sprintf("Deleted %s", path))
			return nil
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv FROM TO",
	Short: "Rename a file or directory",
	Long: `Rename FROM to TO, both relative to the share root. Without --replace
an existing TO fails the rename.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := firstArg(args), firstArg(args[1:])
		return run(cmd, func(ctx context.Context, c *setup.Client) error {
			if err := c.Session.Rename(ctx, from, to, mvReplace); err != nil {
				return err
			}
			c.Printer.Success(fmt.Sprintf("Renamed %s to %s", from, to))
			return nil
		})
	},
}

func init() {
	mvCmd.Flags().BoolVar(&mvReplace, "replace", false, "Replace an existing target")
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "Delete without asking for confirmation")
}
