package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/internal/smbtest"
	"github.com/marmos91/dittosmb/pkg/config"
	"github.com/marmos91/dittosmb/pkg/smb/client"
)

func TestSeedServer(t *testing.T) {
	srv := smbtest.NewServer(smbtest.DefaultOptions())
	require.NoError(t, seedServer(srv, []string{`docs\`, `docs\sub\a.txt`, "top.txt", "x/y/"}))

	assert.True(t, srv.Exists("docs"))
	assert.True(t, srv.Exists(`docs\sub`))
	assert.True(t, srv.Exists(`docs\sub\a.txt`))
	assert.True(t, srv.Exists("top.txt"))
	assert.True(t, srv.Exists(`x\y`))

	data, ok := srv.ReadFile(`docs\sub\a.txt`)
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestServerOptions(t *testing.T) {
	cfg := config.GetDefaultConfig().Server
	cfg.DurableHandles = false
	cfg.MaxGrant = 8

	opts := serverOptions(&cfg)
	assert.True(t, opts.Leasing)
	assert.True(t, opts.DirectoryLeasing)
	assert.False(t, opts.DurableHandles)
	assert.False(t, opts.PersistentHandles)
	assert.True(t, opts.ReparseIoctl)
	assert.Equal(t, uint16(8), opts.MaxGrant)
}

func TestBenchPrefetch(t *testing.T) {
	srv, dir, err := benchServer(24, client.DefaultSecondaryStream)
	require.NoError(t, err)

	cfg := client.DefaultConfig()
	cfg.AsyncDepth = 4
	r, err := benchPrefetch(context.Background(), srv, dir, cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, r.Depth)
	assert.Equal(t, 24, r.Entries)
	assert.Equal(t, 24, r.Fetched)
	assert.GreaterOrEqual(t, r.Jobs, 24)
	assert.Positive(t, r.Duration)

	rows := benchResults{r}.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "4", rows[0][0])
}

// startServer serves srv on a loopback port and writes a config file
// pointing the client commands at it.
func startServer(t *testing.T, srv *smbtest.Server) string {
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
transport:
  address: %q
`, ln.Addr().String())
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := GetRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetIn(strings.NewReader(stdin))
	t.Cleanup(func() {
		root.SetArgs(nil)
		root.SetOut(nil)
		root.SetIn(nil)
	})
	err := Execute()
	return out.String(), err
}

func TestExecCommands(t *testing.T) {
	srv := smbtest.NewServer(smbtest.DefaultOptions())
	require.NoError(t, srv.AddDir("docs"))
	require.NoError(t, srv.AddFile(`docs\readme.txt`, []byte("hello compound")))
	cfgPath := startServer(t, srv)

	t.Run("cat", func(t *testing.T) {
		out, err := execute(t, "", "exec", "cat", "docs/readme.txt", "--config", cfgPath)
		require.NoError(t, err)
		assert.Equal(t, "hello compound", out)
	})

	t.Run("put then cat", func(t *testing.T) {
		_, err := execute(t, "uploaded", "exec", "put", "docs/new.txt", "--config", cfgPath, "-o", "json")
		require.NoError(t, err)
		data, ok := srv.ReadFile(`docs\new.txt`)
		require.True(t, ok)
		assert.Equal(t, "uploaded", string(data))
	})

	t.Run("ls json", func(t *testing.T) {
		out, err := execute(t, "", "exec", "ls", "docs", "--config", cfgPath, "-o", "json")
		require.NoError(t, err)
		var entries []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		var names []string
		for _, e := range entries {
			names = append(names, fmt.Sprint(e["Name"]))
		}
		assert.Contains(t, names, "readme.txt")
	})

	t.Run("mv and rm", func(t *testing.T) {
		_, err := execute(t, "", "exec", "mv", "docs/readme.txt", "docs/renamed.txt", "--config", cfgPath, "-o", "json")
		require.NoError(t, err)
		assert.False(t, srv.Exists(`docs\readme.txt`))
		assert.True(t, srv.Exists(`docs\renamed.txt`))

		// Without a terminal the deletion must be forced.
		_, err = execute(t, "", "exec", "rm", "docs/renamed.txt", "--config", cfgPath)
		require.ErrorIs(t, err, prompt.ErrNotInteractive)
		assert.True(t, srv.Exists(`docs\renamed.txt`))

		_, err = execute(t, "", "exec", "rm", "docs/renamed.txt", "--force", "--config", cfgPath, "-o", "json")
		require.NoError(t, err)
		assert.False(t, srv.Exists(`docs\renamed.txt`))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "", "exec", "stat", "docs/absent.txt", "--config", cfgPath)
		require.Error(t, err)
	})
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsmb", "config.yaml")

	out, err := execute(t, "", "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration file created at: "+path)
	require.FileExists(t, path)

	_, err = execute(t, "", "config", "init", "--config", path)
	require.Error(t, err, "init must refuse to overwrite without --force")
	assert.Contains(t, err.Error(), "--force")

	require.NoError(t, os.WriteFile(path, []byte("logging: {level: DEBUG}\n"), 0600))
	_, err = execute(t, "", "config", "init", "--force", "--config", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "initial_credits: 128")

	out, err = execute(t, "", "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "127.0.0.1:4450")

	out, err = execute(t, "", "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "transport:")
	assert.Contains(t, out, "async_depth:")
}
