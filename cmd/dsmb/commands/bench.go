package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/setup"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smbtest"
	prommetrics "github.com/marmos91/dittosmb/pkg/metrics/prometheus"
	"github.com/marmos91/dittosmb/pkg/smb/client"
	"github.com/marmos91/dittosmb/pkg/smb/prefetch"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

var (
	benchFiles     int
	benchDepths    []int
	benchCredits   int
	benchSecondary bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the compound engine in process",
	Long: `Benchmark the compound engine against an in-process server.

No network is involved: the session talks to an in-memory server through a
loopback transport, so the numbers measure the engine itself.`,
}

var benchPrefetchCmd = &cobra.Command{
	Use:   "prefetch",
	Short: "Time a directory metadata prefetch at several async depths",
	Long: `Time a directory metadata prefetch at several async depths.

A directory holding --files files is created, each file carrying the
secondary stream. For every depth the directory is listed and its entries
prefetched through a fresh session.

Examples:
  # Compare depths 1, 4 and 16 over 2000 files
  dsmb bench prefetch --files 2000 --depths 1,4,16

  # Include the secondary stream reads
  dsmb bench prefetch --secondary`,
	RunE: runBenchPrefetch,
}

func init() {
	benchPrefetchCmd.Flags().IntVar(&benchFiles, "files", 500, "Number of files in the directory")
	benchPrefetchCmd.Flags().IntSliceVar(&benchDepths, "depths", []int{1, 2, 4, 8, 16}, "Async depths to compare")
	benchPrefetchCmd.Flags().IntVar(&benchCredits, "credits", 512, "Credits the loopback grants")
	benchPrefetchCmd.Flags().BoolVar(&benchSecondary, "secondary", false, "Also read the secondary stream")
	benchCmd.AddCommand(benchPrefetchCmd)
}

// benchResult is one row of the prefetch benchmark.
type benchResult struct {
	Depth    int           `json:"depth" yaml:"depth"`
	Entries  int           `json:"entries" yaml:"entries"`
	Fetched  int           `json:"fetched" yaml:"fetched"`
	Jobs     int           `json:"jobs" yaml:"jobs"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

type benchResults []benchResult

// Headers implements output.TableRenderer.
func (r benchResults) Headers() []string {
	return []string{"Depth", "Entries", "Fetched", "Jobs", "Duration", "Per Entry"}
}

// Rows implements output.TableRenderer.
func (r benchResults) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, b := range r {
		per := time.Duration(0)
		if b.Entries > 0 {
			per = b.Duration / time.Duration(b.Entries)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", b.Depth),
			fmt.Sprintf("%d", b.Entries),
			fmt.Sprintf("%d", b.Fetched),
			fmt.Sprintf("%d", b.Jobs),
			b.Duration.Round(time.Microsecond).String(),
			per.Round(time.Microsecond).String(),
		})
	}
	return rows
}

func runBenchPrefetch(cmd *cobra.Command, args []string) error {
	cfg, err := setup.LoadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	if err := setup.InitLogger(cfg); err != nil {
		return err
	}
	printer, err := setup.Printer(cmd)
	if err != nil {
		return err
	}

	profilingStop, err := setup.InitProfiling(cfg, Version, map[string]string{
		"command":   "bench",
		"secondary": fmt.Sprintf("%t", benchSecondary),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := profilingStop(); err != nil {
			logger.Warn("Profiling shutdown error", logger.KeyError, err)
		}
	}()

	srv, dir, err := benchServer(benchFiles, cfg.Engine.SecondaryStream)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results := make(benchResults, 0, len(benchDepths))
	for _, depth := range benchDepths {
		clientCfg := cfg.ClientConfig()
		clientCfg.AsyncDepth = depth
		if clientCfg.CreditLowWater > 0 && clientCfg.CreditLowWater < depth {
			clientCfg.CreditLowWater = depth
		}
		r, err := benchPrefetch(ctx, srv, dir, clientCfg)
		if err != nil {
			return fmt.Errorf("depth %d: %w", depth, err)
		}
		logger.Debug("Prefetch benchmark", "depth", depth, "duration", r.Duration, "entries", r.Entries)
		results = append(results, r)
	}

	return printer.Print(results)
}

// benchServer builds a server holding one directory of n files.
func benchServer(n int, secondary string) (*smbtest.Server, string, error) {
	const dir = "bench"
	srv := smbtest.NewServer(smbtest.DefaultOptions())
	if err := srv.AddDir(dir); err != nil {
		return nil, "", err
	}
	payload := make([]byte, 64)
	for i := range n {
		p := wire.JoinPath(dir, fmt.Sprintf("file-%06d.dat", i))
		if err := srv.AddFile(p, payload); err != nil {
			return nil, "", err
		}
		if err := srv.AddStream(p, secondary, payload[:16]); err != nil {
			return nil, "", err
		}
	}
	return srv, dir, nil
}

// benchPrefetch lists dir and times one prefetch batch over a fresh session.
func benchPrefetch(ctx context.Context, srv *smbtest.Server, dir string, cfg client.Config) (benchResult, error) {
	reg := prometheus.NewRegistry()
	engine := prommetrics.NewEngineWith(reg)

	lb := smbtest.NewLoopback(srv, benchCredits)
	defer func() { _ = lb.Close() }()
	s := client.NewSession(lb, cfg, engine.SessionOptions()...)
	defer func() { _ = s.Close() }()

	listing, err := s.QueryDirectory(ctx, dir, "*")
	if err != nil {
		return benchResult{}, err
	}
	entries := prefetch.EntriesFrom(listing)

	start := time.Now()
	if err := s.EnumerateDirectoryPrefetch(ctx, dir, entries, benchSecondary); err != nil {
		return benchResult{}, err
	}
	elapsed := time.Since(start)

	fetched := 0
	for _, e := range entries {
		if e.MetaFetched {
			fetched++
		}
	}
	jobs, err := sumCounter(reg, "dsmb_prefetch_entries_total")
	if err != nil {
		return benchResult{}, err
	}
	return benchResult{
		Depth:    cfg.AsyncDepth,
		Entries:  len(entries),
		Fetched:  fetched,
		Jobs:     int(jobs),
		Duration: elapsed,
	}, nil
}

// sumCounter adds up every series of the named counter family.
func sumCounter(reg *prometheus.Registry, name string) (float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total, nil
}
