package client

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/lease"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// OpenRequest describes an open_create call.
type OpenRequest struct {
	Path        string
	Stream      string
	Access      uint32
	Disposition types.CreateDisposition
	Options     types.CreateOptions
	ShareAccess uint32
	IsDir       bool

	// ManipulateReparse opens a reparse point itself.
	ManipulateReparse bool
	// KnownAttributes and EnumeratedSymlink come from an earlier listing.
	KnownAttributes   types.FileAttributes
	EnumeratedSymlink bool

	// WantFileID asks for the on-disk file id.
	WantFileID bool

	// Keep returns an open Handle instead of closing it in the same
	// compound.
	Keep bool
	// Durable asks for a durable handle on a kept open, persistent when
	// Persistent is set. Ignored when the session disables durable handles.
	Durable    bool
	Persistent bool
}

func (r *OpenRequest) intent() *wire.CreateIntent {
	return &wire.CreateIntent{
		Path:              r.Path,
		Stream:            r.Stream,
		Access:            r.Access,
		Disposition:       r.Disposition,
		Options:           r.Options,
		ShareAccess:       r.ShareAccess,
		IsDir:             r.IsDir,
		ManipulateReparse: r.ManipulateReparse,
		KnownAttributes:   r.KnownAttributes,
		EnumeratedSymlink: r.EnumeratedSymlink,
	}
}

// OpenResult is the outcome of OpenCreate.
type OpenResult struct {
	// FileID is the handle the server assigned. Unless Handle is set it
	// has been closed already.
	FileID wire.FileID
	// Handle is the kept open, when requested.
	Handle *Handle

	Action         types.CreateAction
	Attributes     types.FileAttributes
	EndOfFile      uint64
	AllocationSize uint64
	CreationTime   time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time

	MaxAccess  uint32
	DiskFileID uint64
	VolumeID   uint64
}

// OpenCreate opens or creates Path. Without Keep the open is
// CREATE+CLOSE in one compound.
func (s *Session) OpenCreate(ctx context.Context, req OpenRequest) (*OpenResult, error) {
	var durable *lease.DurableHandle
	if req.Keep && req.Durable && s.cfg.DurableHandles {
		durable = lease.NewDurableHandle(req.Persistent, s.cfg.DurableTimeout)
	}

	res, err := s.Execute(ctx, Intent{
		Name: "open_create",
		Path: req.Path,
		Keep: req.Keep,
		Build: func(bool) (*compound.Unit, error) {
			ci := req.intent()
			ci.Contexts = append(ci.Contexts, wire.MaximalAccessRequest())
			if req.WantFileID {
				ci.Contexts = append(ci.Contexts, wire.QueryOnDiskIDRequest())
			}
			if durable != nil {
				ci.Contexts = append(ci.Contexts, durable.Request())
			}
			create, err := wire.BuildCreate(ci)
			if err != nil {
				return nil, err
			}
			u, err := compound.Start(create)
			if err != nil {
				return nil, err
			}
			if durable != nil {
				u.OnDiscard(durable.Free)
			}
			if !req.Keep {
				if _, err := u.Chain(&wire.CloseRequest{Flags: types.ClosePostQueryAttrib}, true); err != nil {
					return nil, err
				}
			}
			return u, nil
		},
	})
	if err != nil {
		if durable != nil {
			durable.Free()
		}
		return nil, err
	}

	cr := res.Unit.First().Result.(*wire.CreateResponse)
	out := &OpenResult{
		FileID:         cr.FileID,
		Action:         cr.Action,
		Attributes:     cr.FileAttributes,
		EndOfFile:      cr.EndOfFile,
		AllocationSize: cr.AllocationSize,
		CreationTime:   cr.CreationTime,
		LastWriteTime:  cr.LastWriteTime,
		ChangeTime:     cr.ChangeTime,
		MaxAccess:      cr.MaximalAccess(),
	}
	if c := cr.Context(wire.ContextQueryOnDiskID); c != nil {
		if id, err := wire.DecodeOnDiskIDResponse(c.Data); err == nil {
			out.DiskFileID, out.VolumeID = id.DiskFileID, id.VolumeID
		}
	}
	if !req.Keep {
		if closed, ok := res.Unit.At(1).Result.(*wire.CloseResponse); ok && closed.Flags&types.ClosePostQueryAttrib != 0 {
			out.Attributes = closed.FileAttributes
			out.EndOfFile = closed.EndOfFile
			out.AllocationSize = closed.AllocationSize
			out.LastWriteTime = closed.LastWriteTime
			out.ChangeTime = closed.ChangeTime
		}
		return out, nil
	}

	if durable != nil {
		var grant *wire.DurableV2Response
		if c := cr.Context(wire.ContextDurableV2); c != nil {
			grant, _ = wire.DecodeDurableV2Response(c.Data)
		}
		if !durable.Confirm(res.FileID, grant) {
			logger.DebugCtx(ctx, "Durable handle not granted", logger.KeyPath, req.Path)
			durable = nil
		}
	}
	out.Handle = &Handle{s: s, fid: res.FileID, path: req.Path, durable: durable}
	return out, nil
}

// Handle is an open kept past its compound. The caller must Close it.
type Handle struct {
	s       *Session
	fid     wire.FileID
	path    string
	durable *lease.DurableHandle

	closeOnce sync.Once
	closeErr  error
}

// FileID returns the server handle.
func (h *Handle) FileID() wire.FileID { return h.fid }

// Path returns the path the handle was opened with.
func (h *Handle) Path() string { return h.path }

// Durable reports whether the server granted a durable handle.
func (h *Handle) Durable() bool { return h.durable != nil && h.durable.Granted() }

// Read reads up to length bytes at off. Reading at or past the end of
// file returns no data and no error.
func (h *Handle) Read(ctx context.Context, off uint64, length uint32) ([]byte, error) {
	length = min(length, h.s.cfg.MaxReadSize)
	res, err := h.s.Execute(ctx, Intent{
		Name: "read",
		Path: h.path,
		Build: func(bool) (*compound.Unit, error) {
			u, err := compound.Start(&wire.ReadRequest{FileID: h.fid, Offset: off, Length: length})
			if err != nil {
				return nil, err
			}
			u.First().Expect(types.StatusEndOfFile)
			return u, nil
		},
	})
	if err != nil {
		return nil, err
	}
	if r, ok := res.Unit.First().Result.(*wire.ReadResponse); ok {
		return r.Data, nil
	}
	return nil, nil
}

// Write writes data at off and returns the number of bytes written.
func (h *Handle) Write(ctx context.Context, off uint64, data []byte) (int, error) {
	var written int
	for len(data) > 0 {
		chunk := data[:min(len(data), int(h.s.cfg.MaxWriteSize))]
		res, err := h.s.Execute(ctx, Intent{
			Name: "write",
			Path: h.path,
			Build: func(bool) (*compound.Unit, error) {
				return compound.Start(&wire.WriteRequest{FileID: h.fid, Offset: off, Data: chunk})
			},
		})
		if err != nil {
			return written, err
		}
		n := int(res.Unit.First().Result.(*wire.WriteResponse).Count)
		written += n
		if n < len(chunk) {
			break
		}
		off += uint64(n)
		data = data[n:]
	}
	return written, nil
}

// Close closes the handle with a single CLOSE. Later calls return the
// result of the first.
func (h *Handle) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.closeErr = h.s.CloseHandle(ctx, h.fid)
		if h.durable != nil {
			h.durable.Free()
		}
	})
	return h.closeErr
}
