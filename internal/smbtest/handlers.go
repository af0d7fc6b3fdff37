package smbtest

import (
	"strings"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

const (
	leaseFileMask = types.LeaseStateRead | types.LeaseStateHandle | types.LeaseStateWrite
	leaseDirMask  = types.LeaseStateRead | types.LeaseStateHandle
)

func (s *Server) create(r *wire.CreateRequest) (*reply, wire.FileID) {
	path, streamName := splitStream(r.Name)
	openReparse := r.Options&types.FileOpenReparsePoint != 0

	res := s.tree.resolve(path, openReparse)
	if res.status == types.StatusStoppedOnSymlink {
		body := &wire.ErrorResponse{Contexts: []wire.ErrorContext{{Data: wire.EncodeSymlinkError(res.symlink)}}}
		return &reply{status: res.status, body: body}, wire.FileID{}
	}

	n := res.node
	action := types.FileOpened
	switch {
	case res.status == types.StatusObjectPathNotFound:
		return errorReply(res.status), wire.FileID{}
	case n == nil && streamName == "":
		if !r.Disposition.Creates() {
			return errorReply(types.StatusObjectNameNotFound), wire.FileID{}
		}
		created, st := s.tree.add(path, r.Options&types.FileDirectoryFile != 0)
		if st != types.StatusSuccess {
			return errorReply(st), wire.FileID{}
		}
		created.attrs = r.FileAttributes &^ (types.FileAttributeNormal | types.FileAttributeDirectory)
		n, action = created, types.FileCreated
	case n == nil:
		return errorReply(types.StatusObjectNameNotFound), wire.FileID{}
	case n.denied:
		return errorReply(types.StatusAccessDenied), wire.FileID{}
	case r.Options&types.FileDirectoryFile != 0 && !n.isDir:
		return errorReply(types.StatusNotADirectory), wire.FileID{}
	case r.Options&types.FileNonDirectoryFile != 0 && n.isDir:
		return errorReply(types.StatusFileIsADirectory), wire.FileID{}
	case streamName == "" && r.Disposition == types.FileCreate:
		return errorReply(types.StatusObjectNameCollision), wire.FileID{}
	case streamName == "" && n.isDir && r.Disposition != types.FileOpen && r.Disposition != types.FileOpenIf:
		return errorReply(types.StatusInvalidParameter), wire.FileID{}
	case streamName == "" && (r.Disposition == types.FileOverwrite || r.Disposition == types.FileOverwriteIf):
		n.data = nil
		n.touch(s.tree.now())
		action = types.FileOverwritten
	case streamName == "" && r.Disposition == types.FileSupersede:
		n.data = nil
		n.touch(s.tree.now())
		action = types.FileSuperseded
	}

	if streamName != "" {
		if n.isDir {
			return errorReply(types.StatusFileIsADirectory), wire.FileID{}
		}
		sk := strings.ToLower(streamName)
		st, ok := n.streams[sk]
		switch {
		case !ok && !r.Disposition.Creates():
			return errorReply(types.StatusObjectNameNotFound), wire.FileID{}
		case !ok:
			st = &stream{name: streamName}
			n.streams[sk] = st
			action = types.FileCreated
		case r.Disposition == types.FileCreate:
			return errorReply(types.StatusObjectNameCollision), wire.FileID{}
		case r.Disposition == types.FileOverwrite || r.Disposition == types.FileOverwriteIf || r.Disposition == types.FileSupersede:
			st.data = nil
			action = types.FileOverwritten
		}
	}

	fid := wire.NewFileID(s.nextFID, s.nextFID|0x1000_0000_0000)
	s.nextFID++
	o := &open{
		fid:           fid,
		path:          wire.NormalizePath(path),
		node:          n,
		stream:        strings.ToLower(streamName),
		deleteOnClose: r.Options&types.FileDeleteOnClose != 0,
	}

	resp := &wire.CreateResponse{
		Action:         action,
		CreationTime:   n.created,
		LastAccessTime: n.accessed,
		LastWriteTime:  n.written,
		ChangeTime:     n.changed,
		AllocationSize: allocSize(len(o.data())),
		EndOfFile:      uint64(len(o.data())),
		FileAttributes: n.attributes(),
		FileID:         fid,
	}
	resp.Contexts = s.createContexts(r, o)
	if resp.Context(wire.ContextLease) != nil {
		resp.OplockLevel = types.OplockLevelLease
	}

	s.opens[fid.Volatile()] = o
	return &reply{body: resp}, fid
}

func (s *Server) createContexts(r *wire.CreateRequest, o *open) []wire.CreateContext {
	var out []wire.CreateContext
	n := o.node

	if c := r.Context(wire.ContextMaximalAccess); c != nil {
		mx := &wire.MaximalAccessResponse{Access: types.FileAllAccess}
		if n.maxAccess != 0 {
			mx.Access = n.maxAccess
		}
		if n.maxAccessDenied {
			mx = &wire.MaximalAccessResponse{QueryStatus: types.StatusAccessDenied}
		}
		out = append(out, mx.Context())
	}

	if c := r.Context(wire.ContextLease); c != nil && s.opts.Leasing && (!n.isDir || s.opts.DirectoryLeasing) {
		if req, err := wire.DecodeLeaseV2(c.Data); err == nil {
			mask := uint32(leaseFileMask)
			if n.isDir {
				mask = leaseDirMask
			}
			l := s.leases[req.Key]
			if l == nil {
				l = &serverLease{}
				s.leases[req.Key] = l
			}
			l.state = req.State & mask
			l.epoch++
			o.leaseKey = req.Key
			grant := &wire.LeaseV2{Key: req.Key, State: l.state, ParentKey: req.ParentKey, Epoch: l.epoch}
			out = append(out, grant.Context())
		}
	}

	if c := r.Context(wire.ContextDurableV2); c != nil && s.opts.DurableHandles {
		if req, err := wire.DecodeDurableV2Request(c.Data); err == nil {
			resp := &wire.DurableV2Response{
				TimeoutMillis: req.TimeoutMillis,
				Persistent:    req.Persistent && s.opts.PersistentHandles,
			}
			out = append(out, resp.Context())
		}
	}

	if c := r.Context(wire.ContextQueryOnDiskID); c != nil {
		out = append(out, (&wire.OnDiskIDResponse{DiskFileID: n.index, VolumeID: 1}).Context())
	}
	return out
}

// data returns the bytes of the opened file or stream.
func (o *open) data() []byte {
	if o.stream == "" {
		return o.node.data
	}
	if st := o.node.streams[o.stream]; st != nil {
		return st.data
	}
	return nil
}

func (o *open) setData(b []byte) {
	if o.stream == "" {
		o.node.data = b
		return
	}
	if st := o.node.streams[o.stream]; st != nil {
		st.data = b
	}
}

func (s *Server) close(r *wire.CloseRequest) *reply {
	o, fail := s.lookupOpen(r.FileID)
	if fail != nil {
		return fail
	}
	delete(s.opens, r.FileID.Volatile())

	if o.deleteOnClose || o.deletePending {
		if o.stream != "" {
			delete(o.node.streams, o.stream)
		} else if s.tree.get(o.path) == o.node {
			s.tree.remove(o.path)
		}
	}

	resp := &wire.CloseResponse{Flags: r.Flags}
	if r.Flags&types.ClosePostQueryAttrib != 0 {
		n := o.node
		resp.CreationTime, resp.LastAccessTime = n.created, n.accessed
		resp.LastWriteTime, resp.ChangeTime = n.written, n.changed
		resp.EndOfFile = uint64(len(o.data()))
		resp.AllocationSize = allocSize(len(o.data()))
		resp.FileAttributes = n.attributes()
	}
	return &reply{body: resp}
}

func (s *Server) read(r *wire.ReadRequest) *reply {
	o, fail := s.lookupOpen(r.FileID)
	if fail != nil {
		return fail
	}
	if o.node.isDir {
		return errorReply(types.StatusInvalidDeviceRequest)
	}
	data := o.data()
	if r.Offset >= uint64(len(data)) {
		return errorReply(types.StatusEndOfFile)
	}
	end := min(r.Offset+uint64(r.Length), uint64(len(data)))
	out := append([]byte(nil), data[r.Offset:end]...)
	o.node.accessed = s.tree.now()
	return &reply{body: &wire.ReadResponse{Data: out}}
}

func (s *Server) write(r *wire.WriteRequest) *reply {
	o, fail := s.lookupOpen(r.FileID)
	if fail != nil {
		return fail
	}
	if o.node.isDir {
		return errorReply(types.StatusInvalidDeviceRequest)
	}
	data := o.data()
	end := r.Offset + uint64(len(r.Data))
	if end > uint64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[r.Offset:], r.Data)
	o.setData(data)
	o.node.touch(s.tree.now())
	return &reply{body: &wire.WriteResponse{Count: uint32(len(r.Data))}}
}

func (s *Server) queryInfo(r *wire.QueryInfoRequest) *reply {
	o, fail := s.lookupOpen(r.FileID)
	if fail != nil {
		return fail
	}
	if r.InfoType != types.InfoTypeFile {
		return errorReply(types.StatusInvalidInfoClass)
	}

	n := o.node
	size := uint64(len(o.data()))
	basic := wire.FileBasicInfo{
		CreationTime:   n.created,
		LastAccessTime: n.accessed,
		LastWriteTime:  n.written,
		ChangeTime:     n.changed,
		FileAttributes: n.attributes(),
	}
	standard := wire.FileStandardInfo{
		AllocationSize: allocSize(int(size)),
		EndOfFile:      size,
		NumberOfLinks:  1,
		DeletePending:  o.deletePending,
		Directory:      n.isDir,
	}

	w := smbenc.NewWriter(128)
	variable := false
	switch r.Class {
	case types.FileBasicInformation:
		basic.Encode(w)
	case types.FileStandardInformation:
		standard.Encode(w)
	case types.FileInternalInformation:
		w.WriteUint64(n.index)
	case types.FileNetworkOpenInformation:
		(&wire.FileNetworkOpenInfo{
			CreationTime:   n.created,
			LastAccessTime: n.accessed,
			LastWriteTime:  n.written,
			ChangeTime:     n.changed,
			AllocationSize: standard.AllocationSize,
			EndOfFile:      size,
			FileAttributes: n.attributes(),
		}).Encode(w)
	case types.FileAttributeTagInformation:
		tag := &wire.FileAttributeTagInfo{FileAttributes: n.attributes()}
		if n.symlink != nil {
			tag.ReparseTag = types.ReparseTagSymlink
		}
		tag.Encode(w)
	case types.FileAllInformation:
		variable = true
		(&wire.FileAllInfo{
			Basic:       basic,
			Standard:    standard,
			IndexNumber: n.index,
			Name:        `\` + o.path,
		}).Encode(w)
	case types.FileStreamInformation:
		variable = true
		wire.EncodeFileStreamInfo(w, n.streamList())
	default:
		return errorReply(types.StatusInvalidInfoClass)
	}

	out := w.Bytes()
	if limit := int(r.OutputBufferLength); len(out) > limit {
		if !variable {
			return errorReply(types.StatusInfoLengthMismatch)
		}
		return &reply{status: types.StatusBufferOverflow, body: &wire.QueryInfoResponse{Output: out[:limit]}}
	}
	return &reply{body: &wire.QueryInfoResponse{Output: out}}
}

func (s *Server) setInfo(r *wire.SetInfoRequest) *reply {
	o, fail := s.lookupOpen(r.FileID)
	if fail != nil {
		return fail
	}
	if r.InfoType != types.InfoTypeFile {
		return errorReply(types.StatusInvalidInfoClass)
	}

	n := o.node
	switch r.Class {
	case types.FileDispositionInformation:
		if len(r.Buffer) < 1 {
			return errorReply(types.StatusInfoLengthMismatch)
		}
		pending := r.Buffer[0] != 0
		if pending && n.isDir && o.stream == "" && len(s.tree.children(o.path)) > 0 {
			return errorReply(types.StatusDirectoryNotEmpty)
		}
		o.deletePending = pending
	case types.FileRenameInformation:
		info, err := wire.DecodeFileRenameInfo(r.Buffer)
		if err != nil {
			return errorReply(types.StatusInvalidParameter)
		}
		target := wire.NormalizePath(info.FileName)
		if existing := s.tree.get(target); existing != nil && existing != n {
			if !info.ReplaceIfExists {
				return errorReply(types.StatusObjectNameCollision)
			}
			if existing.isDir {
				return errorReply(types.StatusAccessDenied)
			}
			s.tree.remove(target)
		}
		parent := s.tree.get(wire.ParentPath(target))
		if parent == nil || !parent.isDir {
			return errorReply(types.StatusObjectPathNotFound)
		}
		from := o.path
		s.tree.move(from, target)
		for _, other := range s.opens {
			if key(other.path) == key(from) || strings.HasPrefix(key(other.path), key(from)+`\`) {
				other.path = target + other.path[len(from):]
			}
		}
	case types.FileBasicInformation:
		info, err := wire.DecodeFileBasicInfo(r.Buffer)
		if err != nil {
			return errorReply(types.StatusInfoLengthMismatch)
		}
		if !info.CreationTime.IsZero() {
			n.created = info.CreationTime
		}
		if !info.LastAccessTime.IsZero() {
			n.accessed = info.LastAccessTime
		}
		if !info.LastWriteTime.IsZero() {
			n.written = info.LastWriteTime
		}
		if !info.ChangeTime.IsZero() {
			n.changed = info.ChangeTime
		}
		if info.FileAttributes != 0 {
			n.attrs = info.FileAttributes &^ (types.FileAttributeNormal | types.FileAttributeDirectory | types.FileAttributeReparsePoint)
		}
	case types.FileEndOfFileInformation:
		size, err := wire.DecodeFileEndOfFileInfo(r.Buffer)
		if err != nil {
			return errorReply(types.StatusInfoLengthMismatch)
		}
		if n.isDir {
			return errorReply(types.StatusInvalidParameter)
		}
		data := o.data()
		resized := make([]byte, size)
		copy(resized, data)
		o.setData(resized)
		n.touch(s.tree.now())
	default:
		return errorReply(types.StatusInvalidInfoClass)
	}
	return &reply{body: &wire.SetInfoResponse{}}
}

func (s *Server) ioctl(r *wire.IoctlRequest) *reply {
	o, fail := s.lookupOpen(r.FileID)
	if fail != nil {
		return fail
	}
	if r.CtlCode != types.FsctlGetReparsePoint || !s.opts.ReparseIoctl {
		return errorReply(types.StatusInvalidDeviceRequest)
	}
	if o.node.symlink == nil {
		return errorReply(types.StatusNotAReparsePoint)
	}
	w := smbenc.NewWriter(128)
	wire.EncodeSymlinkReparse(w, o.node.symlink)
	out := w.Bytes()
	if r.MaxOutputResponse > 0 && len(out) > int(r.MaxOutputResponse) {
		return errorReply(types.StatusBufferTooSmall)
	}
	return &reply{body: &wire.IoctlResponse{CtlCode: r.CtlCode, FileID: r.FileID, Output: out}}
}

func (s *Server) queryDirectory(r *wire.QueryDirectoryRequest) *reply {
	o, fail := s.lookupOpen(r.FileID)
	if fail != nil {
		return fail
	}
	if !o.node.isDir {
		return errorReply(types.StatusInvalidParameter)
	}
	if r.Flags&(types.QueryDirRestartScans|types.QueryDirReopen) != 0 {
		o.enumerated = 0
	}

	var entries []wire.DirEntry
	for _, child := range s.tree.children(o.path) {
		if !matchPattern(r.Pattern, child.name) {
			continue
		}
		e := wire.DirEntry{
			FileIndex:      uint32(child.index),
			CreationTime:   child.created,
			LastAccessTime: child.accessed,
			LastWriteTime:  child.written,
			ChangeTime:     child.changed,
			EndOfFile:      uint64(len(child.data)),
			AllocationSize: allocSize(len(child.data)),
			FileAttributes: child.attributes(),
			FileID:         child.index,
			Name:           child.name,
		}
		if child.symlink != nil {
			e.EaSize = types.ReparseTagSymlink
		}
		entries = append(entries, e)
	}
	if o.enumerated >= len(entries) {
		if o.enumerated == 0 && r.Pattern != "" && r.Pattern != "*" {
			return errorReply(types.StatusNoSuchFile)
		}
		return errorReply(types.StatusNoMoreFiles)
	}
	entries = entries[o.enumerated:]
	if r.Flags&types.QueryDirReturnSingleEntry != 0 {
		entries = entries[:1]
	}

	w := smbenc.NewWriter(int(r.OutputBufferLength))
	n := wire.EncodeDirEntries(w, entries, int(r.OutputBufferLength))
	if n == 0 {
		return errorReply(types.StatusBufferTooSmall)
	}
	o.enumerated += n
	return &reply{body: &wire.QueryDirectoryResponse{Output: w.Bytes()}}
}

// matchPattern supports "*", an exact name and a single trailing or
// leading '*'.
func matchPattern(pattern, name string) bool {
	p, n := strings.ToLower(pattern), strings.ToLower(name)
	switch {
	case p == "" || p == "*":
		return true
	case strings.HasSuffix(p, "*"):
		return strings.HasPrefix(n, strings.TrimSuffix(p, "*"))
	case strings.HasPrefix(p, "*"):
		return strings.HasSuffix(n, strings.TrimPrefix(p, "*"))
	}
	return p == n
}
