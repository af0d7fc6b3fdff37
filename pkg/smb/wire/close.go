package wire

import (
	"time"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// CloseRequest is an SMB2 CLOSE request [MS-SMB2] 2.2.15.
type CloseRequest struct {
	Flags  uint16
	FileID FileID
}

// Command implements Request.
func (r *CloseRequest) Command() types.Command { return types.CommandClose }

// Target implements Targeted.
func (r *CloseRequest) Target() FileID { return r.FileID }

// SetTarget implements Targeted.
func (r *CloseRequest) SetTarget(f FileID) { r.FileID = f }

// Encode implements Request.
func (r *CloseRequest) Encode(w *smbenc.Writer) {
	w.WriteUint16(24)
	w.WriteUint16(r.Flags)
	w.WriteUint32(0)
	r.FileID.encode(w)
}

// DecodeCloseRequest decodes a CLOSE request. msg starts at the SMB2 header.
func DecodeCloseRequest(msg []byte) (*CloseRequest, error) {
	r := bodyReader(msg, 24)
	req := &CloseRequest{Flags: r.ReadUint16()}
	r.Skip(4)
	req.FileID = readFileID(r)
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandClose, err)
	}
	return req, nil
}

// CloseResponse is an SMB2 CLOSE response [MS-SMB2] 2.2.16. Attribute fields
// are only meaningful when ClosePostQueryAttrib was requested.
type CloseResponse struct {
	Flags          uint16
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes types.FileAttributes
}

// Command implements Response.
func (r *CloseResponse) Command() types.Command { return types.CommandClose }

// Encode writes the response body.
func (r *CloseResponse) Encode(w *smbenc.Writer) {
	w.WriteUint16(60)
	w.WriteUint16(r.Flags)
	w.WriteUint32(0)
	w.WriteUint64(types.TimeToFiletime(r.CreationTime))
	w.WriteUint64(types.TimeToFiletime(r.LastAccessTime))
	w.WriteUint64(types.TimeToFiletime(r.LastWriteTime))
	w.WriteUint64(types.TimeToFiletime(r.ChangeTime))
	w.WriteUint64(r.AllocationSize)
	w.WriteUint64(r.EndOfFile)
	w.WriteUint32(uint32(r.FileAttributes))
}

// DecodeCloseResponse decodes a CLOSE response. reply starts at the SMB2 header.
func DecodeCloseResponse(reply []byte) (*CloseResponse, error) {
	r := bodyReader(reply, 60)
	resp := &CloseResponse{Flags: r.ReadUint16()}
	r.Skip(4)
	resp.CreationTime = types.FiletimeToTime(r.ReadUint64())
	resp.LastAccessTime = types.FiletimeToTime(r.ReadUint64())
	resp.LastWriteTime = types.FiletimeToTime(r.ReadUint64())
	resp.ChangeTime = types.FiletimeToTime(r.ReadUint64())
	resp.AllocationSize = r.ReadUint64()
	resp.EndOfFile = r.ReadUint64()
	resp.FileAttributes = types.FileAttributes(r.ReadUint32())
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandClose, err)
	}
	return resp, nil
}

// FlushRequest is an SMB2 FLUSH request [MS-SMB2] 2.2.17.
type FlushRequest struct {
	FileID FileID
}

// Command implements Request.
func (r *FlushRequest) Command() types.Command { return types.CommandFlush }

// Target implements Targeted.
func (r *FlushRequest) Target() FileID { return r.FileID }

// SetTarget implements Targeted.
func (r *FlushRequest) SetTarget(f FileID) { r.FileID = f }

// Encode implements Request.
func (r *FlushRequest) Encode(w *smbenc.Writer) {
	w.WriteUint16(24)
	w.WriteUint16(0)
	w.WriteUint32(0)
	r.FileID.encode(w)
}

// DecodeFlushRequest decodes a FLUSH request.
func DecodeFlushRequest(msg []byte) (*FlushRequest, error) {
	r := bodyReader(msg, 24)
	r.Skip(6)
	req := &FlushRequest{FileID: readFileID(r)}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandFlush, err)
	}
	return req, nil
}

// FlushResponse is an SMB2 FLUSH response [MS-SMB2] 2.2.18.
type FlushResponse struct{}

// Command implements Response.
func (r *FlushResponse) Command() types.Command { return types.CommandFlush }

// Encode writes the response body.
func (r *FlushResponse) Encode(w *smbenc.Writer) {
	w.WriteUint16(4)
	w.WriteUint16(0)
}

// DecodeFlushResponse decodes a FLUSH response.
func DecodeFlushResponse(reply []byte) (*FlushResponse, error) {
	r := bodyReader(reply, 4)
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandFlush, err)
	}
	return &FlushResponse{}, nil
}
