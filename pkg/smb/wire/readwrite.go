package wire

import (
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

const (
	readResponseDataOffset = header.HeaderSize + 16
	writeRequestDataOffset = header.HeaderSize + 48
)

// ReadRequest is an SMB2 READ request [MS-SMB2] 2.2.19.
type ReadRequest struct {
	Length       uint32
	Offset       uint64
	FileID       FileID
	MinimumCount uint32
}

// Command implements Request.
func (r *ReadRequest) Command() types.Command { return types.CommandRead }

// Target implements Targeted.
func (r *ReadRequest) Target() FileID { return r.FileID }

// SetTarget implements Targeted.
func (r *ReadRequest) SetTarget(f FileID) { r.FileID = f }

// PayloadSize implements Charged.
func (r *ReadRequest) PayloadSize() int { return int(r.Length) }

// Encode implements Request.
func (r *ReadRequest) Encode(w *smbenc.Writer) {
	w.WriteUint16(49)
	w.WriteUint8(readResponseDataOffset) // Padding: preferred response data offset
	w.WriteUint8(0)                      // Flags
	w.WriteUint32(r.Length)
	w.WriteUint64(r.Offset)
	r.FileID.encode(w)
	w.WriteUint32(r.MinimumCount)
	w.WriteUint32(0) // Channel
	w.WriteUint32(0) // RemainingBytes
	w.WriteUint16(0) // ReadChannelInfoOffset
	w.WriteUint16(0) // ReadChannelInfoLength
	w.WriteUint8(0)  // Buffer
}

// DecodeReadRequest decodes a READ request.
func DecodeReadRequest(msg []byte) (*ReadRequest, error) {
	r := bodyReader(msg, 49)
	r.Skip(2)
	req := &ReadRequest{Length: r.ReadUint32(), Offset: r.ReadUint64()}
	req.FileID = readFileID(r)
	req.MinimumCount = r.ReadUint32()
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandRead, err)
	}
	return req, nil
}

// ReadResponse is an SMB2 READ response [MS-SMB2] 2.2.20.
type ReadResponse struct {
	Data          []byte
	DataRemaining uint32
}

// Command implements Response.
func (r *ReadResponse) Command() types.Command { return types.CommandRead }

// Encode writes the response body.
func (r *ReadResponse) Encode(w *smbenc.Writer) {
	w.WriteUint16(17)
	w.WriteUint8(readResponseDataOffset)
	w.WriteUint8(0)
	w.WriteUint32(uint32(len(r.Data)))
	w.WriteUint32(r.DataRemaining)
	w.WriteUint32(0)
	if len(r.Data) == 0 {
		w.WriteUint8(0)
		return
	}
	w.WriteBytes(r.Data)
}

// DecodeReadResponse decodes a READ response.
func DecodeReadResponse(reply []byte) (*ReadResponse, error) {
	r := bodyReader(reply, 17)
	offset := int(r.ReadUint8())
	r.Skip(1)
	length := int(r.ReadUint32())
	resp := &ReadResponse{DataRemaining: r.ReadUint32()}
	if length > 0 {
		resp.Data = append([]byte(nil), r.Window(offset, length)...)
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandRead, err)
	}
	return resp, nil
}

// WriteRequest is an SMB2 WRITE request [MS-SMB2] 2.2.21.
type WriteRequest struct {
	Offset uint64
	FileID FileID
	Data   []byte
}

// Command implements Request.
func (r *WriteRequest) Command() types.Command { return types.CommandWrite }

// Target implements Targeted.
func (r *WriteRequest) Target() FileID { return r.FileID }

// SetTarget implements Targeted.
func (r *WriteRequest) SetTarget(f FileID) { r.FileID = f }

// PayloadSize implements Charged.
func (r *WriteRequest) PayloadSize() int { return len(r.Data) }

// Encode implements Request.
func (r *WriteRequest) Encode(w *smbenc.Writer) {
	w.WriteUint16(49)
	w.WriteUint16(writeRequestDataOffset)
	w.WriteUint32(uint32(len(r.Data)))
	w.WriteUint64(r.Offset)
	r.FileID.encode(w)
	w.WriteUint32(0) // Channel
	w.WriteUint32(0) // RemainingBytes
	w.WriteUint16(0) // WriteChannelInfoOffset
	w.WriteUint16(0) // WriteChannelInfoLength
	w.WriteUint32(0) // Flags
	if len(r.Data) == 0 {
		w.WriteUint8(0)
		return
	}
	w.WriteBytes(r.Data)
}

// DecodeWriteRequest decodes a WRITE request.
func DecodeWriteRequest(msg []byte) (*WriteRequest, error) {
	r := bodyReader(msg, 49)
	offset := int(r.ReadUint16())
	length := int(r.ReadUint32())
	req := &WriteRequest{Offset: r.ReadUint64()}
	req.FileID = readFileID(r)
	if length > 0 {
		req.Data = append([]byte(nil), r.Window(offset, length)...)
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandWrite, err)
	}
	return req, nil
}

// WriteResponse is an SMB2 WRITE response [MS-SMB2] 2.2.22.
type WriteResponse struct {
	Count uint32
}

// Command implements Response.
func (r *WriteResponse) Command() types.Command { return types.CommandWrite }

// Encode writes the response body.
func (r *WriteResponse) Encode(w *smbenc.Writer) {
	w.WriteUint16(17)
	w.WriteUint16(0)
	w.WriteUint32(r.Count)
	w.WriteUint32(0)
	w.WriteUint16(0)
	w.WriteUint16(0)
}

// DecodeWriteResponse decodes a WRITE response.
func DecodeWriteResponse(reply []byte) (*WriteResponse, error) {
	r := bodyReader(reply, 17)
	r.Skip(2)
	resp := &WriteResponse{Count: r.ReadUint32()}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandWrite, err)
	}
	return resp, nil
}
