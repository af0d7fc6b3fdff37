package setup

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smbtest"
	"github.com/marmos91/dittosmb/pkg/metrics"
	"github.com/marmos91/dittosmb/pkg/smb/lease"
)

// serveConfig serves srv on a loopback port and returns a config file
// pointing at it with metrics enabled.
func serveConfig(t *testing.T, srv *smbtest.Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`logging:
  level: ERROR
  output: stderr
metrics:
  enabled: true
  port: 0
transport:
  address: %q
`, ln.Addr().String())
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func counterFamilies(t *testing.T) map[string]float64 {
	t.Helper()
	reg := metrics.GetRegistry()
	require.NotNil(t, reg)
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				out[f.GetName()] += c.GetValue()
			}
		}
	}
	return out
}

func TestConnectRecordsEngineMetrics(t *testing.T) {
	srv := smbtest.NewServer(smbtest.DefaultOptions())
	require.NoError(t, srv.AddDir("d"))
	require.NoError(t, srv.AddFile(`d\a.txt`, []byte("hello")))

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", serveConfig(t, srv), "")
	t.Cleanup(func() { lease.Default().SetMetrics(nil) })

	ctx := context.Background()
	c, err := Connect(ctx, cmd, "test")
	require.NoError(t, err)
	require.NotNil(t, c.metrics, "the metrics endpoint runs while the client lives")

	_, err = c.Session.Stat(ctx, `d\a.txt`)
	require.NoError(t, err)
	dir, err := c.Session.OpenDirectory(ctx, "d")
	require.NoError(t, err)
	require.NoError(t, dir.Close(ctx))
	require.NoError(t, c.Close(ctx))

	counters := counterFamilies(t)
	assert.Positive(t, counters["dsmb_compound_total"])
	assert.Positive(t, counters["dsmb_compound_commands_total"])
	assert.Positive(t, counters["dsmb_lease_events_total"], "the default lease table records into the engine")
}
