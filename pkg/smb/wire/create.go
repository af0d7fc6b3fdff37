package wire

import (
	"time"

	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// Impersonation levels [MS-SMB2] 2.2.13
const (
	ImpersonationAnonymous      uint32 = 0
	ImpersonationIdentification uint32 = 1
	ImpersonationImpersonation  uint32 = 2
	ImpersonationDelegate       uint32 = 3
)

const (
	createRequestStructureSize  = 57
	createResponseStructureSize = 89
)

// CreateRequest is an SMB2 CREATE request [MS-SMB2] 2.2.13.
type CreateRequest struct {
	OplockLevel        uint8
	ImpersonationLevel uint32
	DesiredAccess      uint32
	FileAttributes     types.FileAttributes
	ShareAccess        uint32
	Disposition        types.CreateDisposition
	Options            types.CreateOptions
	// Name is the share-relative path with backslash separators, including
	// a ":stream" suffix for named streams.
	Name     string
	Contexts []CreateContext
}

// Command implements Request.
func (r *CreateRequest) Command() types.Command { return types.CommandCreate }

// Context returns the request context with the given tag, or nil.
func (r *CreateRequest) Context(name string) *CreateContext {
	return FindContext(r.Contexts, name)
}

// Encode implements Request.
func (r *CreateRequest) Encode(w *smbenc.Writer) {
	start := w.Len()
	w.WriteUint16(createRequestStructureSize)
	w.WriteUint8(0) // SecurityFlags
	w.WriteUint8(r.OplockLevel)
	w.WriteUint32(r.ImpersonationLevel)
	w.WriteUint64(0) // SmbCreateFlags
	w.WriteUint64(0) // Reserved
	w.WriteUint32(r.DesiredAccess)
	w.WriteUint32(uint32(r.FileAttributes))
	w.WriteUint32(r.ShareAccess)
	w.WriteUint32(uint32(r.Disposition))
	w.WriteUint32(uint32(r.Options))
	nameFields := w.Len()
	w.WriteUint16(0) // NameOffset
	w.WriteUint16(0) // NameLength
	w.WriteUint32(0) // CreateContextsOffset
	w.WriteUint32(0) // CreateContextsLength

	nameOffset := header.HeaderSize + w.Len() - start
	nameLen := w.WriteUTF16(r.Name)
	if nameLen == 0 && len(r.Contexts) == 0 {
		// The Buffer field is at least one byte long.
		w.WriteUint8(0)
	}
	w.PutUint16At(nameFields, uint16(nameOffset))
	w.PutUint16At(nameFields+2, uint16(nameLen))

	if len(r.Contexts) > 0 {
		w.Pad(8)
		ctxOffset := header.HeaderSize + w.Len() - start
		n := EncodeContexts(w, r.Contexts)
		w.PutUint32At(nameFields+4, uint32(ctxOffset))
		w.PutUint32At(nameFields+8, uint32(n))
	}
}

// DecodeCreateRequest decodes a CREATE request. msg starts at the SMB2 header.
func DecodeCreateRequest(msg []byte) (*CreateRequest, error) {
	r := bodyReader(msg, createRequestStructureSize)
	r.Skip(1)
	req := &CreateRequest{OplockLevel: r.ReadUint8()}
	req.ImpersonationLevel = r.ReadUint32()
	r.Skip(16)
	req.DesiredAccess = r.ReadUint32()
	req.FileAttributes = types.FileAttributes(r.ReadUint32())
	req.ShareAccess = r.ReadUint32()
	req.Disposition = types.CreateDisposition(r.ReadUint32())
	req.Options = types.CreateOptions(r.ReadUint32())
	nameOffset := int(r.ReadUint16())
	nameLen := int(r.ReadUint16())
	ctxOffset := int(r.ReadUint32())
	ctxLen := int(r.ReadUint32())
	if nameLen > 0 {
		req.Name = smbenc.DecodeUTF16LE(r.Window(nameOffset, nameLen))
	}
	if ctxLen > 0 {
		contexts, err := DecodeContexts(r.Window(ctxOffset, ctxLen))
		if err != nil {
			r.Fail(err)
		}
		req.Contexts = contexts
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandCreate, err)
	}
	return req, nil
}

// CreateResponse is an SMB2 CREATE response [MS-SMB2] 2.2.14.
type CreateResponse struct {
	OplockLevel    uint8
	Flags          uint8
	Action         types.CreateAction
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes types.FileAttributes
	FileID         FileID
	Contexts       []CreateContext
}

// Command implements Response.
func (r *CreateResponse) Command() types.Command { return types.CommandCreate }

// Context returns the response context with the given tag, or nil.
func (r *CreateResponse) Context(name string) *CreateContext {
	return FindContext(r.Contexts, name)
}

// Encode writes the response body.
func (r *CreateResponse) Encode(w *smbenc.Writer) {
	start := w.Len()
	w.WriteUint16(createResponseStructureSize)
	w.WriteUint8(r.OplockLevel)
	w.WriteUint8(r.Flags)
	w.WriteUint32(uint32(r.Action))
	w.WriteUint64(types.TimeToFiletime(r.CreationTime))
	w.WriteUint64(types.TimeToFiletime(r.LastAccessTime))
	w.WriteUint64(types.TimeToFiletime(r.LastWriteTime))
	w.WriteUint64(types.TimeToFiletime(r.ChangeTime))
	w.WriteUint64(r.AllocationSize)
	w.WriteUint64(r.EndOfFile)
	w.WriteUint32(uint32(r.FileAttributes))
	w.WriteUint32(0) // Reserved2
	r.FileID.encode(w)
	ctxFields := w.Len()
	w.WriteUint32(0)
	w.WriteUint32(0)
	if len(r.Contexts) == 0 {
		w.WriteUint8(0)
		return
	}
	w.Pad(8)
	ctxOffset := header.HeaderSize + w.Len() - start
	n := EncodeContexts(w, r.Contexts)
	w.PutUint32At(ctxFields, uint32(ctxOffset))
	w.PutUint32At(ctxFields+4, uint32(n))
}

// DecodeCreateResponse decodes a CREATE response. reply starts at the SMB2 header.
func DecodeCreateResponse(reply []byte) (*CreateResponse, error) {
	r := bodyReader(reply, createResponseStructureSize)
	resp := &CreateResponse{
		OplockLevel: r.ReadUint8(),
		Flags:       r.ReadUint8(),
		Action:      types.CreateAction(r.ReadUint32()),
	}
	resp.CreationTime = types.FiletimeToTime(r.ReadUint64())
	resp.LastAccessTime = types.FiletimeToTime(r.ReadUint64())
	resp.LastWriteTime = types.FiletimeToTime(r.ReadUint64())
	resp.ChangeTime = types.FiletimeToTime(r.ReadUint64())
	resp.AllocationSize = r.ReadUint64()
	resp.EndOfFile = r.ReadUint64()
	resp.FileAttributes = types.FileAttributes(r.ReadUint32())
	r.Skip(4)
	resp.FileID = readFileID(r)
	ctxOffset := int(r.ReadUint32())
	ctxLen := int(r.ReadUint32())
	if ctxLen > 0 {
		contexts, err := DecodeContexts(r.Window(ctxOffset, ctxLen))
		if err != nil {
			r.Fail(err)
		}
		resp.Contexts = contexts
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandCreate, err)
	}
	if !resp.FileID.IsResolved() {
		return nil, malformed(types.CommandCreate, errPendingFileID)
	}
	return resp, nil
}
