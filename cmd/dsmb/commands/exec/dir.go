package exec

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/internal/cli/setup"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/smb/prefetch"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

var (
	lsPattern string
	lsLease   bool

	prefetchSecondary bool
	prefetchRestarts  int
)

var lsCmd = &cobra.Command{
	Use:   "ls [DIR]",
	Short: "List a directory",
	Long: `List a directory in one CREATE+QUERY_DIRECTORY+CLOSE compound.

With --lease the directory is opened under a read/handle lease and listed
through the kept handle instead.

Examples:
  # List the share root
  dsmb exec ls

  # List text files as JSON
  dsmb exec ls docs --pattern '*.txt' -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var prefetchCmd = &cobra.Command{
	Use:   "prefetch DIR",
	Short: "List a directory and prefetch the metadata of its entries",
	Long: `List a directory, then fetch the maximal access and stream list of
every entry with pipelined compounds, engine.async_depth at a time.

With --secondary the engine.secondary_stream of each entry that carries it
is read as well. When the connection is re-established mid-batch the
listing is restarted, up to --restarts times.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrefetch,
}

var durableCmd = &cobra.Command{
	Use:   "durable [DIR]",
	Short: "Check durable and persistent handle support",
	Long: `Create a delete-on-close check file in DIR asking for a persistent
durable handle and report what the server granted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDurable,
}

func init() {
	lsCmd.Flags().StringVar(&lsPattern, "pattern", "*", "Search pattern")
	lsCmd.Flags().BoolVar(&lsLease, "lease", false, "List through a leased directory handle")

	prefetchCmd.Flags().BoolVar(&prefetchSecondary, "secondary", false, "Also read the secondary stream")
	prefetchCmd.Flags().IntVar(&prefetchRestarts, "restarts", 3, "Listing restarts allowed after a reconnect")
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return wire.NormalizePath(args[0])
}

func runLs(cmd *cobra.Command, args []string) error {
	dir := firstArg(args)
	return run(cmd, func(ctx context.Context, c *setup.Client) error {
		if !lsLease {
			entries, err := c.Session.QueryDirectory(ctx, dir, lsPattern)
			if err != nil {
				return err
			}
			return c.Printer.Print(output.DirListing(entries))
		}

		d, err := c.Session.OpenDirectory(ctx, dir)
		if err != nil {
			return err
		}
		defer func() {
			if err := d.Close(ctx); err != nil {
				logger.Warn("Directory close failed", logger.KeyPath, dir, logger.KeyError, err)
			}
		}()

		entries, err := d.List(ctx, lsPattern)
		if err != nil {
			return err
		}
		if err := c.Printer.Print(output.DirListing(entries)); err != nil {
			return err
		}
		if e, ok := d.Lease(); ok {
			c.Printer.Printf("\nlease %s: %s, cached %t\n", e.Key, e.State, d.Cached())
		} else {
			c.Printer.Warning("no directory lease held")
		}
		return nil
	})
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	dir := firstArg(args)
	return run(cmd, func(ctx context.Context, c *setup.Client) error {
		for attempt := 0; ; attempt++ {
			listing, err := c.Session.QueryDirectory(ctx, dir, "*")
			if err != nil {
				return err
			}
			entries := prefetch.EntriesFrom(listing)

			err = c.Session.EnumerateDirectoryPrefetch(ctx, dir, entries, prefetchSecondary)
			if errors.Is(err, prefetch.ErrRestartEnumeration) && attempt < prefetchRestarts {
				logger.Warn("Restarting enumeration", logger.KeyPath, dir, "attempt", attempt+1)
				continue
			}
			if err != nil {
				return err
			}
			return c.Printer.Print(output.PrefetchEntries(entries))
		}
	})
}

func runDurable(cmd *cobra.Command, args []string) error {
	dir := firstArg(args)
	return run(cmd, func(ctx context.Context, c *setup.Client) error {
		support, err := c.Session.CheckDurableHandleSupport(ctx, dir)
		if err != nil {
			return err
		}
		if c.Printer.Structured() {
			return c.Printer.Print(support)
		}
		return output.SimpleTable(cmd.OutOrStdout(), [][2]string{
			{"Directory", displayPath(dir)},
			{"Durable", fmt.Sprintf("%t", support.Durable)},
			{"Persistent", fmt.Sprintf("%t", support.Persistent)},
		})
	})
}

// displayPath shows the share root as a backslash.
func displayPath(p string) string {
	if p == "" {
		return `\`
	}
	return p
}
