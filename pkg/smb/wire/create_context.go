package wire

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// Create context tags [MS-SMB2] 2.2.13.2
const (
	ContextLease          = "RqLs"
	ContextDurableV2      = "DH2Q"
	ContextMaximalAccess  = "MxAc"
	ContextQueryOnDiskID  = "QFid"
	contextHeaderSize     = 16
	leaseV2ContextSize    = 52
	durableV2RequestSize  = 32
	durableV2ResponseSize = 8
	maxAccessResponseSize = 8
	onDiskIDResponseSize  = 32
)

var errPendingFileID = errors.New("server returned the placeholder file id")

// CreateContext is one SMB2_CREATE_CONTEXT entry.
type CreateContext struct {
	Name string
	Data []byte
}

// FindContext returns the context with the given tag, or nil.
func FindContext(contexts []CreateContext, name string) *CreateContext {
	for i := range contexts {
		if contexts[i].Name == name {
			return &contexts[i]
		}
	}
	return nil
}

// EncodeContexts appends a create context chain and returns its length.
// Each entry starts 8-byte aligned relative to the first.
func EncodeContexts(w *smbenc.Writer, contexts []CreateContext) int {
	start := w.Len()
	for i, c := range contexts {
		entry := w.Len()
		name := []byte(c.Name)
		dataOffset := 0
		if len(c.Data) > 0 {
			dataOffset = align8(contextHeaderSize + len(name))
		}
		w.WriteUint32(0) // Next, patched below
		w.WriteUint16(contextHeaderSize)
		w.WriteUint16(uint16(len(name)))
		w.WriteUint16(0)
		w.WriteUint16(uint16(dataOffset))
		w.WriteUint32(uint32(len(c.Data)))
		w.WriteBytes(name)
		if len(c.Data) > 0 {
			w.Pad(8)
			w.WriteBytes(c.Data)
		}
		if i < len(contexts)-1 {
			w.Pad(8)
			w.PutUint32At(entry, uint32(w.Len()-entry))
		}
	}
	return w.Len() - start
}

// DecodeContexts parses a create context chain.
func DecodeContexts(buf []byte) ([]CreateContext, error) {
	var out []CreateContext
	off := 0
	for {
		r := smbenc.NewReader(buf)
		r.Seek(off)
		next := int(r.ReadUint32())
		nameOffset := int(r.ReadUint16())
		nameLen := int(r.ReadUint16())
		r.Skip(2)
		dataOffset := int(r.ReadUint16())
		dataLen := int(r.ReadUint32())
		name := r.Window(off+nameOffset, nameLen)
		var data []byte
		if dataLen > 0 {
			data = append([]byte(nil), r.Window(off+dataOffset, dataLen)...)
		}
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("create context at %d: %w", off, err)
		}
		out = append(out, CreateContext{Name: string(name), Data: data})
		if next == 0 {
			return out, nil
		}
		if next%8 != 0 || next < contextHeaderSize {
			return nil, fmt.Errorf("create context at %d: bad next offset %d", off, next)
		}
		off += next
	}
}

func align8(n int) int { return (n + 7) &^ 7 }

// LeaseKey is the 128-bit client-chosen lease identifier.
type LeaseKey [16]byte

// IsZero reports whether the key is all zeros.
func (k LeaseKey) IsZero() bool { return k == LeaseKey{} }

func (k LeaseKey) String() string { return uuid.UUID(k).String() }

// LeaseV2 is the SMB2_CREATE_REQUEST_LEASE_V2 / RESPONSE_LEASE_V2 payload
// [MS-SMB2] 2.2.13.2.10, 2.2.14.2.11.
type LeaseV2 struct {
	Key       LeaseKey
	State     uint32
	Flags     uint32
	ParentKey LeaseKey
	Epoch     uint16
}

// Context encodes the lease as a create context.
func (l *LeaseV2) Context() CreateContext {
	w := smbenc.NewWriter(leaseV2ContextSize)
	w.WriteBytes(l.Key[:])
	w.WriteUint32(l.State)
	flags := l.Flags
	if !l.ParentKey.IsZero() {
		flags |= types.LeaseFlagParentKeySet
	}
	w.WriteUint32(flags)
	w.WriteUint64(0) // LeaseDuration
	w.WriteBytes(l.ParentKey[:])
	w.WriteUint16(l.Epoch)
	w.WriteUint16(0)
	return CreateContext{Name: ContextLease, Data: w.Bytes()}
}

// DecodeLeaseV2 decodes a lease context payload.
func DecodeLeaseV2(data []byte) (*LeaseV2, error) {
	if len(data) < leaseV2ContextSize {
		return nil, fmt.Errorf("%w: lease context %d bytes", ErrMalformed, len(data))
	}
	r := smbenc.NewReader(data)
	l := &LeaseV2{}
	copy(l.Key[:], r.ReadBytes(16))
	l.State = r.ReadUint32()
	l.Flags = r.ReadUint32()
	r.Skip(8)
	copy(l.ParentKey[:], r.ReadBytes(16))
	l.Epoch = r.ReadUint16()
	return l, r.Err()
}

// DurableV2Request is the SMB2_CREATE_DURABLE_HANDLE_REQUEST_V2 payload
// [MS-SMB2] 2.2.13.2.11.
type DurableV2Request struct {
	TimeoutMillis uint32
	Persistent    bool
	CreateGUID    uuid.UUID
}

// Context encodes the request as a create context.
func (d *DurableV2Request) Context() CreateContext {
	w := smbenc.NewWriter(durableV2RequestSize)
	w.WriteUint32(d.TimeoutMillis)
	var flags uint32
	if d.Persistent {
		flags |= types.DurableHandleFlagPersistent
	}
	w.WriteUint32(flags)
	w.WriteUint64(0)
	w.WriteBytes(d.CreateGUID[:])
	return CreateContext{Name: ContextDurableV2, Data: w.Bytes()}
}

// DecodeDurableV2Request decodes a DH2Q request payload.
func DecodeDurableV2Request(data []byte) (*DurableV2Request, error) {
	if len(data) < durableV2RequestSize {
		return nil, fmt.Errorf("%w: DH2Q request %d bytes", ErrMalformed, len(data))
	}
	r := smbenc.NewReader(data)
	d := &DurableV2Request{TimeoutMillis: r.ReadUint32()}
	d.Persistent = r.ReadUint32()&types.DurableHandleFlagPersistent != 0
	r.Skip(8)
	copy(d.CreateGUID[:], r.ReadBytes(16))
	return d, r.Err()
}

// DurableV2Response is the SMB2_CREATE_DURABLE_HANDLE_RESPONSE_V2 payload.
type DurableV2Response struct {
	TimeoutMillis uint32
	Persistent    bool
}

// Context encodes the response as a create context.
func (d *DurableV2Response) Context() CreateContext {
	w := smbenc.NewWriter(durableV2ResponseSize)
	w.WriteUint32(d.TimeoutMillis)
	var flags uint32
	if d.Persistent {
		flags = types.DurableHandleFlagPersistent
	}
	w.WriteUint32(flags)
	return CreateContext{Name: ContextDurableV2, Data: w.Bytes()}
}

// DecodeDurableV2Response decodes a DH2Q response payload.
func DecodeDurableV2Response(data []byte) (*DurableV2Response, error) {
	if len(data) < durableV2ResponseSize {
		return nil, fmt.Errorf("%w: DH2Q response %d bytes", ErrMalformed, len(data))
	}
	r := smbenc.NewReader(data)
	d := &DurableV2Response{TimeoutMillis: r.ReadUint32()}
	d.Persistent = r.ReadUint32()&types.DurableHandleFlagPersistent != 0
	return d, r.Err()
}

// MaximalAccessRequest asks the server to report the caller's maximal access.
func MaximalAccessRequest() CreateContext {
	return CreateContext{Name: ContextMaximalAccess}
}

// MaximalAccessResponse is the SMB2_CREATE_QUERY_MAXIMAL_ACCESS_RESPONSE payload.
type MaximalAccessResponse struct {
	QueryStatus types.Status
	Access      uint32
}

// Context encodes the response as a create context.
func (m *MaximalAccessResponse) Context() CreateContext {
	w := smbenc.NewWriter(maxAccessResponseSize)
	w.WriteUint32(uint32(m.QueryStatus))
	w.WriteUint32(m.Access)
	return CreateContext{Name: ContextMaximalAccess, Data: w.Bytes()}
}

// DecodeMaximalAccessResponse decodes an MxAc response payload.
func DecodeMaximalAccessResponse(data []byte) (*MaximalAccessResponse, error) {
	if len(data) < maxAccessResponseSize {
		return nil, fmt.Errorf("%w: MxAc response %d bytes", ErrMalformed, len(data))
	}
	r := smbenc.NewReader(data)
	return &MaximalAccessResponse{
		QueryStatus: types.Status(r.ReadUint32()),
		Access:      r.ReadUint32(),
	}, r.Err()
}

// QueryOnDiskIDRequest asks the server for the on-disk file identifier.
func QueryOnDiskIDRequest() CreateContext {
	return CreateContext{Name: ContextQueryOnDiskID}
}

// OnDiskIDResponse is the SMB2_CREATE_QUERY_ON_DISK_ID response payload.
type OnDiskIDResponse struct {
	DiskFileID uint64
	VolumeID   uint64
}

// Context encodes the response as a create context.
func (o *OnDiskIDResponse) Context() CreateContext {
	w := smbenc.NewWriter(onDiskIDResponseSize)
	w.WriteUint64(o.DiskFileID)
	w.WriteUint64(o.VolumeID)
	w.WriteZeros(16)
	return CreateContext{Name: ContextQueryOnDiskID, Data: w.Bytes()}
}

// DecodeOnDiskIDResponse decodes a QFid response payload.
func DecodeOnDiskIDResponse(data []byte) (*OnDiskIDResponse, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: QFid response %d bytes", ErrMalformed, len(data))
	}
	r := smbenc.NewReader(data)
	return &OnDiskIDResponse{DiskFileID: r.ReadUint64(), VolumeID: r.ReadUint64()}, r.Err()
}

// MaximalAccess returns the access mask of the MxAc response context. A
// query the server denied yields 0. A missing or malformed context yields
// FileAllAccess.
func (r *CreateResponse) MaximalAccess() uint32 {
	c := r.Context(ContextMaximalAccess)
	if c == nil {
		return types.FileAllAccess
	}
	mx, err := DecodeMaximalAccessResponse(c.Data)
	switch {
	case err != nil:
		return types.FileAllAccess
	case mx.QueryStatus == types.StatusAccessDenied:
		return 0
	case !mx.QueryStatus.IsSuccess():
		return types.FileAllAccess
	}
	return mx.Access
}
