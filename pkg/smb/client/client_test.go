package client

import (
	"context"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/internal/smbtest"
	"github.com/marmos91/dittosmb/pkg/smb/lease"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

type recordingMetrics struct {
	mu        sync.Mutex
	results   []string
	replays   []bool
	fallbacks []string
	commands  map[types.Command]int
}

func (m *recordingMetrics) ObserveCompound(_, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *recordingMetrics) RecordCommand(cmd types.Command, _ types.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commands == nil {
		m.commands = make(map[types.Command]int)
	}
	m.commands[cmd]++
}

func (m *recordingMetrics) RecordReplay(alternate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replays = append(m.replays, alternate)
}

func (m *recordingMetrics) RecordFallbackClose(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks = append(m.fallbacks, outcome)
}

func (m *recordingMetrics) Fallbacks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fallbacks...)
}

type testEnv struct {
	s       *Session
	srv     *smbtest.Server
	lb      *smbtest.Loopback
	metrics *recordingMetrics
}

func newTestEnv(t *testing.T, opts smbtest.Options, configure ...func(*Config)) *testEnv {
	t.Helper()
	srv := smbtest.NewServer(opts)
	lb := smbtest.NewLoopback(srv, 256)

	cfg := DefaultConfig()
	cfg.RequestTimeout = 2 * time.Second
	cfg.CloseTimeout = time.Second
	for _, f := range configure {
		f(&cfg)
	}
	m := &recordingMetrics{}
	s := NewSession(lb, cfg, WithLeaseTable(lease.NewTable(nil)), WithMetrics(m))
	t.Cleanup(func() {
		_ = s.Close()
		_ = lb.Close()
	})
	return &testEnv{s: s, srv: srv, lb: lb, metrics: m}
}

func TestOpenCreateClosesInSameCompound(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())
	require.NoError(t, env.srv.AddFile("a.txt", []byte("hello")))

	res, err := env.s.OpenCreate(context.Background(), OpenRequest{
		Path:        "a.txt",
		Access:      types.FileReadData | types.FileReadAttributes,
		Disposition: types.FileOpen,
		WantFileID:  true,
	})
	require.NoError(t, err)

	assert.True(t, res.FileID.IsResolved())
	assert.Nil(t, res.Handle)
	assert.Equal(t, types.FileOpened, res.Action)
	assert.Equal(t, uint64(5), res.EndOfFile)
	assert.Equal(t, types.FileAllAccess, res.MaxAccess)
	assert.NotZero(t, res.DiskFileID)

	assert.Equal(t, 1, env.lb.Submitted())
	assert.Equal(t, 1, env.srv.Count(types.CommandClose))
	assert.Equal(t, 1, env.srv.CloseAttempts(res.FileID))
	assert.Equal(t, 0, env.srv.OpenHandles())
	assert.Empty(t, env.metrics.Fallbacks())
}

func TestOpenCreateKeepHandsHandleOff(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())
	ctx := context.Background()

	res, err := env.s.OpenCreate(ctx, OpenRequest{
		Path:        "new.txt",
		Access:      types.FileReadData | types.FileWriteData | types.FileReadAttributes,
		Disposition: types.FileCreate,
		Keep:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Handle)
	assert.Equal(t, types.FileCreated, res.Action)
	assert.Equal(t, 1, env.srv.OpenHandles())
	assert.Equal(t, 0, env.srv.Count(types.CommandClose))

	h := res.Handle
	n, err := h.Write(ctx, 0, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	data, err := h.Read(ctx, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("load"), data)

	data, err = h.Read(ctx, 7, 100)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, h.Close(ctx))
	require.NoError(t, h.Close(ctx))
	assert.Equal(t, 1, env.srv.CloseAttempts(h.FileID()))
	assert.Equal(t, 0, env.srv.OpenHandles())
}

func TestOpenCreateDurable(t *testing.T) {
	tests := []struct {
		name    string
		server  bool
		session bool
		want    bool
	}{
		{"granted", true, true, true},
		{"server refuses", false, true, false},
		{"session disabled", true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := smbtest.DefaultOptions()
			opts.DurableHandles = tt.server
			env := newTestEnv(t, opts, func(c *Config) { c.DurableHandles = tt.session })
			require.NoError(t, env.srv.AddFile("a.txt", nil))

			res, err := env.s.OpenCreate(context.Background(), OpenRequest{
				Path:        "a.txt",
				Access:      types.FileReadData,
				Disposition: types.FileOpen,
				Keep:        true,
				Durable:     true,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Handle.Durable())
			require.NoError(t, res.Handle.Close(context.Background()))
		})
	}
}

func TestOpenCreateMissingFile(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())

	_, err := env.s.OpenCreate(context.Background(), OpenRequest{
		Path:        "missing.txt",
		Access:      types.FileReadAttributes,
		Disposition: types.FileOpen,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	// The related CLOSE inherits the CREATE failure and nothing leaks.
	assert.Equal(t, 1, env.srv.Count(types.CommandClose))
	assert.Equal(t, 0, env.srv.OpenHandles())
	assert.Empty(t, env.metrics.Fallbacks())
}

func TestOpenCreateRejectsInvalidIntent(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())

	_, err := env.s.OpenCreate(context.Background(), OpenRequest{
		Path:        "d",
		Stream:      "meta",
		IsDir:       true,
		Disposition: types.FileOpen,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrInvalidArgument)
	assert.Equal(t, 0, env.lb.Submitted())
}

func TestQueryInfoFailureClosesInSameCompound(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())
	require.NoError(t, env.srv.AddFile("foo.txt", []byte("x")))
	env.srv.Inject(smbtest.FailCommand(types.CommandQueryInfo, "foo.txt", types.StatusNoSuchFile))

	_, err := env.s.QueryInfo(context.Background(), "foo.txt", types.FileStandardInformation)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	recs := env.srv.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, types.CommandClose, recs[2].Command)
	assert.Equal(t, types.StatusSuccess, recs[2].Status)
	assert.Equal(t, recs[0].FileID, recs[2].FileID)
	assert.Equal(t, 0, env.srv.OpenHandles())
	assert.Empty(t, env.metrics.Fallbacks())
}

// TestFailedCloseFallsBackToStandaloneClose covers the one case where a
// handle is closed twice: a compound CLOSE failing with a status other than
// success, STATUS_FILE_CLOSED or STATUS_INVALID_HANDLE may have left the
// handle open, so the guard sends one standalone CLOSE. Statuses that prove
// the handle is gone never trigger it.
func TestFailedCloseFallsBackToStandaloneClose(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())
	require.NoError(t, env.srv.AddFile("a.txt", []byte("data")))

	var failed atomic.Bool
	env.srv.Inject(func(c *smbtest.Call) *smbtest.Fault {
		if c.Command() == types.CommandClose && failed.CompareAndSwap(false, true) {
			return &smbtest.Fault{Status: types.StatusInternalError}
		}
		return nil
	})

	_, err := env.s.Stat(context.Background(), "a.txt")
	require.Error(t, err)
	assert.True(t, types.HasStatus(err, types.StatusInternalError))

	assert.Equal(t, 2, env.srv.Count(types.CommandClose))
	assert.Equal(t, 0, env.srv.OpenHandles())
	assert.Equal(t, []string{"closed"}, env.metrics.Fallbacks())
}

func TestTimedOutCompoundReturnsLateCredits(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions(), func(c *Config) {
		c.RequestTimeout = 50 * time.Millisecond
	})
	require.NoError(t, env.srv.AddFile("a.txt", []byte("data")))
	before := env.lb.AvailableCredits()

	env.lb.HoldAll()
	_, err := env.s.Stat(context.Background(), "a.txt")
	require.ErrorIs(t, err, transport.ErrTimeout)
	assert.Equal(t, before-3, env.lb.AvailableCredits())

	env.lb.ReleaseHeld()
	assert.Equal(t, before, env.lb.AvailableCredits())
	assert.Equal(t, 0, env.srv.OpenHandles())
}

func TestStat(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())
	require.NoError(t, env.srv.AddDir("d"))
	require.NoError(t, env.srv.AddFile(`d\a.txt`, []byte("hello")))

	st, err := env.s.Stat(context.Background(), `d\a.txt`)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), st.Standard.EndOfFile)
	assert.False(t, st.Standard.Directory)

	st, err = env.s.Stat(context.Background(), "d")
	require.NoError(t, err)
	assert.True(t, st.Standard.Directory)
}

func TestStatGrowsBufferOnOverflow(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())
	name := strings.Repeat("n", 2100)
	require.NoError(t, env.srv.AddFile(name, []byte("x")))

	st, err := env.s.Stat(context.Background(), name)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Standard.EndOfFile)
	assert.Equal(t, 2, env.srv.Count(types.CommandQueryInfo))
	assert.Equal(t, 0, env.srv.OpenHandles())
}

func TestStreams(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())
	ctx := context.Background()
	require.NoError(t, env.srv.AddFile("a.txt", []byte("body")))
	require.NoError(t, env.srv.AddStream("a.txt", "meta", []byte("m")))

	streams, err := env.s.ListStreams(ctx, "a.txt")
	require.NoError(t, err)
	names := make([]string, 0, len(streams))
	for _, st := range streams {
		names = append(names, st.Name)
	}
	assert.ElementsMatch(t, []string{"", "meta"}, names)

	ok, err := env.s.StreamExists(ctx, "a.txt", "meta")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.s.StreamExists(ctx, "a.txt", "other")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, env.srv.OpenHandles())
}

func TestReadWriteStream(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions(), func(c *Config) {
		c.MaxReadSize = 4
		c.MaxWriteSize = 4
	})
	ctx := context.Background()

	n, err := env.s.WriteStream(ctx, "a.txt", "", 0, []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 1, env.lb.Submitted())
	assert.Equal(t, 3, env.srv.Count(types.CommandWrite))

	got, ok := env.srv.ReadFile("a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("0123456789"), got)

	data, err := env.s.ReadStream(ctx, "a.txt", "", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), data)
	assert.Equal(t, 4, env.srv.Count(types.CommandRead))

	data, err = env.s.ReadStream(ctx, "a.txt", "", 8, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), data)

	_, err = env.s.WriteStream(ctx, "a.txt", "meta", 0, []byte("side"))
	require.NoError(t, err)
	got, ok = env.srv.ReadFile("a.txt:meta")
	require.True(t, ok)
	assert.Equal(t, []byte("side"), got)

	assert.Equal(t, 0, env.srv.OpenHandles())
}

func TestSplitChunks(t *testing.T) {
	data := make([]byte, 10)

	parts, total := splitChunks(data, 4)
	require.Len(t, parts, 3)
	assert.Equal(t, 10, total)
	assert.Len(t, parts[2], 2)

	// Only maxIOChunks chunks go into one compound; the count covers them,
	// not the remainder.
	parts, total = splitChunks(make([]byte, 100), 4)
	assert.Len(t, parts, maxIOChunks)
	assert.Equal(t, 4*maxIOChunks, total)

	parts, total = splitChunks(nil, 4)
	assert.Empty(t, parts)
	assert.Zero(t, total)
}

func TestReadStreamMissingFile(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())

	_, err := env.s.ReadStream(context.Background(), "missing", "", 0, 10)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, 0, env.srv.OpenHandles())
}

func TestSetInfoOperations(t *testing.T) {
	env := newTestEnv(t, smbtest.DefaultOptions())
	ctx := context.Background()
	require.NoError(t, env.srv.AddDir("d"))
	require.NoError(t, env.srv.AddFile("a.txt", []byte("hello")))

	t.Run("truncate", func(t *testing.T) {
		require.NoError(t, env.s.Truncate(ctx, "a.txt", 2))
		got, _ := env.srv.ReadFile("a.txt")
		assert.Equal(t, []byte("he"), got)
	})

	t.Run("attributes", func(t *testing.T) {
		require.NoError(t, env.s.SetAttributes(ctx, "a.txt", types.FileAttributeHidden))
		attrs, ok := env.srv.Attributes("a.txt")
		require.True(t, ok)
		assert.NotZero(t, attrs&types.FileAttributeHidden)
	})

	t.Run("times", func(t *testing.T) {
		mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, env.s.SetTimes(ctx, "a.txt", time.Time{}, mtime))
		st, err := env.s.Stat(ctx, "a.txt")
		require.NoError(t, err)
		assert.True(t, st.Basic.LastWriteTime.Equal(mtime))
	})

	t.Run("rename", func(t *testing.T) {
		require.NoError(t, env.s.Rename(ctx, "a.txt", `d\b.txt`, false))
		assert.False(t, env.srv.Exists("a.txt"))
		assert.True(t, env.srv.Exists(`d\b.txt`))
	})

	t.Run("rename collision", func(t *testing.T) {
		require.NoError(t, env.srv.AddFile("c.txt", nil))
		err := env.s.Rename(ctx, "c.txt", `d\b.txt`, false)
		assert.ErrorIs(t, err, fs.ErrExist)
		require.NoError(t, env.s.Rename(ctx, "c.txt", `d\b.txt`, true))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, env.s.Delete(ctx, `d\b.txt`))
		assert.False(t, env.srv.Exists(`d\b.txt`))
	})

	t.Run("delete symlink", func(t *testing.T) {
		require.NoError(t, env.srv.AddFile("target.txt", nil))
		require.NoError(t, env.srv.AddSymlink("link", "target.txt"))
		require.NoError(t, env.s.Delete(ctx, "link"))
		assert.False(t, env.srv.Exists("link"))
		assert.True(t, env.srv.Exists("target.txt"))
	})

	assert.Equal(t, 0, env.srv.OpenHandles())
}

func TestCheckDurableHandleSupport(t *testing.T) {
	tests := []struct {
		name       string
		durable    bool
		persistent bool
		want       DurableSupport
	}{
		{"persistent", true, true, DurableSupport{Durable: true, Persistent: true}},
		{"durable only", true, false, DurableSupport{Durable: true}},
		{"none", false, false, DurableSupport{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := smbtest.DefaultOptions()
			opts.DurableHandles = tt.durable
			opts.PersistentHandles = tt.persistent
			env := newTestEnv(t, opts)
			require.NoError(t, env.srv.AddDir("d"))

			got, err := env.s.CheckDurableHandleSupport(context.Background(), "d")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// The check file is delete-on-close.
			entries, err := env.s.QueryDirectory(context.Background(), "d", "")
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Equal(t, 0, env.srv.OpenHandles())
		})
	}
}
