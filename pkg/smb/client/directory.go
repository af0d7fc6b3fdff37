package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/lease"
	"github.com/marmos91/dittosmb/pkg/smb/prefetch"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

const (
	directoryBuffer = 64 * 1024
	// checkFilePrefix names the files created by CheckDurableHandleSupport.
	checkFilePrefix = ".dsmb-durable-check-"
)

// Directory is a directory open kept for enumeration, holding a read/handle
// lease when the server granted one.
type Directory struct {
	s        *Session
	path     string
	fid      wire.FileID
	leaseKey wire.LeaseKey

	maxAccess uint32

	mu     sync.Mutex
	closed bool
}

// OpenDirectory opens path as a directory. With DirectoryLeases enabled a
// read/handle lease is requested; its entry is inserted in the lease table
// before the CREATE is sent and confirmed or removed once the reply is
// walked.
func (s *Session) OpenDirectory(ctx context.Context, path string) (*Directory, error) {
	var key wire.LeaseKey
	res, err := s.Execute(ctx, Intent{
		Name: "open_directory",
		Path: path,
		Keep: true,
		Build: func(bool) (*compound.Unit, error) {
			ci := &wire.CreateIntent{
				Path:        path,
				Access:      types.FileReadData | types.FileReadAttributes | types.Synchronize,
				Disposition: types.FileOpen,
				IsDir:       true,
				Contexts:    []wire.CreateContext{wire.MaximalAccessRequest()},
			}
			requested := types.LeaseStateRead | types.LeaseStateHandle
			if s.cfg.DirectoryLeases {
				key = lease.NewKey()
				l := &wire.LeaseV2{Key: key, State: requested}
				ci.OplockLevel = types.OplockLevelLease
				ci.Contexts = append(ci.Contexts, l.Context())
			}
			create, err := wire.BuildCreate(ci)
			if err != nil {
				return nil, err
			}
			u, err := compound.Start(create)
			if err != nil {
				return nil, err
			}
			if !key.IsZero() {
				if err := s.leases.InsertSpeculative(key, requested, wire.LeaseKey{}); err != nil {
					return nil, err
				}
				inserted := key
				u.OnDiscard(func() { s.leases.Remove(inserted) })
			}
			return u, nil
		},
	})
	if err != nil {
		if !key.IsZero() {
			s.leases.Remove(key)
		}
		return nil, err
	}

	cr := res.Unit.First().Result.(*wire.CreateResponse)
	d := &Directory{s: s, path: path, fid: res.FileID, maxAccess: cr.MaximalAccess()}
	if !key.IsZero() {
		var state uint32
		var epoch uint16
		if c := cr.Context(wire.ContextLease); c != nil && cr.OplockLevel == types.OplockLevelLease {
			if granted, err := wire.DecodeLeaseV2(c.Data); err == nil && granted.Key == key {
				state, epoch = granted.State, granted.Epoch
			}
		}
		if s.leases.Confirm(key, res.FileID, state, epoch) {
			d.leaseKey = key
		}
		logger.DebugCtx(ctx, "Directory lease",
			logger.KeyPath, path,
			logger.KeyLeaseKey, key.String(),
			logger.KeyLeaseState, state,
			logger.KeyEpoch, epoch)
	}
	return d, nil
}

// Path returns the directory path.
func (d *Directory) Path() string { return d.path }

// FileID returns the directory handle.
func (d *Directory) FileID() wire.FileID { return d.fid }

// MaxAccess returns the maximal access on the directory.
func (d *Directory) MaxAccess() uint32 { return d.maxAccess }

// Lease returns the lease table entry of the directory, if it holds one.
func (d *Directory) Lease() (lease.Entry, bool) {
	if d.leaseKey.IsZero() {
		return lease.Entry{}, false
	}
	return d.s.leases.Lookup(d.leaseKey)
}

// Cached reports whether a listing of the directory may be served from
// cache: the lease, granted or broken, still holds read caching.
func (d *Directory) Cached() bool {
	e, ok := d.Lease()
	return ok && e.State != lease.StatePending && e.Flags&types.LeaseStateRead != 0
}

// List returns the entries matching pattern, "*" when empty. Each call
// restarts the enumeration of the handle.
func (d *Directory) List(ctx context.Context, pattern string) ([]wire.DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, types.NewStatusError(types.CommandQueryDirectory, types.StatusFileClosed)
	}
	if pattern == "" {
		pattern = "*"
	}

	var out []wire.DirEntry
	flags := types.QueryDirRestartScans
	for {
		res, err := d.s.Execute(ctx, Intent{
			Name: "list_directory",
			Path: d.path,
			Build: func(bool) (*compound.Unit, error) {
				u, err := compound.Start(&wire.QueryDirectoryRequest{
					Class:              types.FileIDBothDirectoryInformation,
					Flags:              flags,
					FileID:             d.fid,
					Pattern:            pattern,
					OutputBufferLength: directoryBuffer,
				})
				if err != nil {
					return nil, err
				}
				u.First().Expect(types.StatusNoMoreFiles, types.StatusNoSuchFile)
				return u, nil
			},
		})
		if err != nil {
			return nil, err
		}
		page, done, err := directoryPage(res.Unit.First())
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if done {
			return out, nil
		}
		flags = 0
	}
}

// Close removes the directory lease and closes the handle.
func (d *Directory) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.leaseKey.IsZero() {
		d.s.leases.Remove(d.leaseKey)
	}
	return d.s.CloseHandle(ctx, d.fid)
}

// QueryDirectory lists path with one CREATE+QUERY_DIRECTORY×2+CLOSE
// compound. When the listing does not fit, the rest is read through a kept
// directory handle.
func (s *Session) QueryDirectory(ctx context.Context, path, pattern string) ([]wire.DirEntry, error) {
	if pattern == "" {
		pattern = "*"
	}
	res, err := s.Execute(ctx, Intent{
		Name: "query_directory",
		Path: path,
		Build: func(bool) (*compound.Unit, error) {
			create, err := wire.BuildCreate(&wire.CreateIntent{
				Path:        path,
				Access:      types.FileReadData | types.FileReadAttributes | types.Synchronize,
				Disposition: types.FileOpen,
				IsDir:       true,
			})
			if err != nil {
				return nil, err
			}
			u, err := compound.Start(create)
			if err != nil {
				return nil, err
			}
			for _, flags := range []uint8{types.QueryDirRestartScans, 0} {
				c, err := u.Chain(&wire.QueryDirectoryRequest{
					Class:              types.FileIDBothDirectoryInformation,
					Flags:              flags,
					Pattern:            pattern,
					OutputBufferLength: directoryBuffer,
				}, false)
				if err != nil {
					return nil, err
				}
				c.Expect(types.StatusNoMoreFiles, types.StatusNoSuchFile)
			}
			if _, err := u.Chain(&wire.CloseRequest{}, true); err != nil {
				return nil, err
			}
			return u, nil
		},
	})
	if err != nil {
		return nil, err
	}

	var out []wire.DirEntry
	done := false
	for i := 1; i <= 2 && !done; i++ {
		var page []wire.DirEntry
		if page, done, err = directoryPage(res.Unit.At(i)); err != nil {
			return nil, err
		}
		out = append(out, page...)
	}
	if done {
		return out, nil
	}

	logger.DebugCtx(ctx, "Directory listing continues on a kept handle",
		logger.KeyPath, path,
		logger.KeyEntries, len(out))
	dir, err := s.OpenDirectory(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dir.Close(ctx) }()
	return dir.List(ctx, pattern)
}

// directoryPage decodes one QUERY_DIRECTORY reply without "." and "..".
// done reports the end of the enumeration.
func directoryPage(c *compound.Command) ([]wire.DirEntry, bool, error) {
	q, ok := c.Result.(*wire.QueryDirectoryResponse)
	if !ok {
		return nil, true, nil
	}
	entries, err := wire.DecodeDirEntries(q.Output)
	if err != nil {
		return nil, false, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Name != "." && e.Name != ".." {
			out = append(out, e)
		}
	}
	return out, false, nil
}

// DurableSupport reports what CheckDurableHandleSupport found.
type DurableSupport struct {
	Durable    bool
	Persistent bool
}

// CheckDurableHandleSupport creates a delete-on-close check file in dir
// asking for a persistent durable handle and reports what was granted.
func (s *Session) CheckDurableHandleSupport(ctx context.Context, dir string) (DurableSupport, error) {
	checkPath := wire.JoinPath(dir, checkFilePrefix+uuid.NewString())
	durable := lease.NewDurableHandle(true, s.cfg.DurableTimeout)
	defer durable.Free()

	res, err := s.Execute(ctx, Intent{
		Name: "check_durable_handles",
		Path: checkPath,
		Build: func(bool) (*compound.Unit, error) {
			create, err := wire.BuildCreate(&wire.CreateIntent{
				Path:        checkPath,
				Access:      types.FileReadAttributes | types.Delete | types.Synchronize,
				Disposition: types.FileCreate,
				Options:     types.FileDeleteOnClose | types.FileNonDirectoryFile,
				Contexts:    []wire.CreateContext{durable.Request()},
			})
			if err != nil {
				return nil, err
			}
			u, err := compound.Start(create)
			if err != nil {
				return nil, err
			}
			if _, err := u.Chain(&wire.CloseRequest{}, true); err != nil {
				return nil, err
			}
			return u, nil
		},
	})
	if err != nil {
		return DurableSupport{}, fmt.Errorf("durable handle check in %q: %w", dir, err)
	}

	cr := res.Unit.First().Result.(*wire.CreateResponse)
	var grant *wire.DurableV2Response
	if c := cr.Context(wire.ContextDurableV2); c != nil {
		grant, _ = wire.DecodeDurableV2Response(c.Data)
	}
	durable.Confirm(cr.FileID, grant)
	support := DurableSupport{Durable: durable.Granted(), Persistent: durable.Persistent()}
	logger.DebugCtx(ctx, "Durable handle support",
		logger.KeyPath, dir,
		"durable", support.Durable,
		"persistent", support.Persistent)
	return support, nil
}

// EnumerateDirectoryPrefetch fills the metadata of entries of dir, and their
// secondary stream when wantSecondary is set, with pipelined compounds. It
// returns prefetch.ErrRestartEnumeration when the transport reconnected.
func (s *Session) EnumerateDirectoryPrefetch(ctx context.Context, dir string, entries []*prefetch.Entry, wantSecondary bool) error {
	d := prefetch.NewDriver(s.tr, s, prefetch.Config{
		AsyncDepth:      s.cfg.AsyncDepth,
		CreditLowWater:  s.cfg.CreditLowWater,
		SecondaryStream: s.cfg.SecondaryStream,
		SecondarySize:   s.cfg.SecondaryStreamSize,
		RequestTimeout:  s.cfg.RequestTimeout,
		CloseTimeout:    s.cfg.CloseTimeout,
	}, s.prefetchMetrics)
	return d.Run(ctx, dir, entries, wantSecondary)
}
