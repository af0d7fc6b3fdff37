package wire

import (
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// QueryInfoRequest is an SMB2 QUERY_INFO request [MS-SMB2] 2.2.37.
type QueryInfoRequest struct {
	InfoType           types.InfoType
	Class              types.FileInfoClass
	OutputBufferLength uint32
	AdditionalInfo     uint32
	Flags              uint32
	FileID             FileID
	Input              []byte
}

// Command implements Request.
func (r *QueryInfoRequest) Command() types.Command { return types.CommandQueryInfo }

// Target implements Targeted.
func (r *QueryInfoRequest) Target() FileID { return r.FileID }

// SetTarget implements Targeted.
func (r *QueryInfoRequest) SetTarget(f FileID) { r.FileID = f }

// PayloadSize implements Charged.
func (r *QueryInfoRequest) PayloadSize() int { return int(r.OutputBufferLength) }

// Encode implements Request.
func (r *QueryInfoRequest) Encode(w *smbenc.Writer) {
	w.WriteUint16(41)
	w.WriteUint8(uint8(r.InfoType))
	w.WriteUint8(uint8(r.Class))
	w.WriteUint32(r.OutputBufferLength)
	if len(r.Input) > 0 {
		w.WriteUint16(header.HeaderSize + 40)
	} else {
		w.WriteUint16(0)
	}
	w.WriteUint16(0)
	w.WriteUint32(uint32(len(r.Input)))
	w.WriteUint32(r.AdditionalInfo)
	w.WriteUint32(r.Flags)
	r.FileID.encode(w)
	if len(r.Input) == 0 {
		w.WriteUint8(0)
		return
	}
	w.WriteBytes(r.Input)
}

// DecodeQueryInfoRequest decodes a QUERY_INFO request.
func DecodeQueryInfoRequest(msg []byte) (*QueryInfoRequest, error) {
	r := bodyReader(msg, 41)
	req := &QueryInfoRequest{
		InfoType: types.InfoType(r.ReadUint8()),
		Class:    types.FileInfoClass(r.ReadUint8()),
	}
	req.OutputBufferLength = r.ReadUint32()
	inOffset := int(r.ReadUint16())
	r.Skip(2)
	inLen := int(r.ReadUint32())
	req.AdditionalInfo = r.ReadUint32()
	req.Flags = r.ReadUint32()
	req.FileID = readFileID(r)
	if inLen > 0 {
		req.Input = append([]byte(nil), r.Window(inOffset, inLen)...)
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandQueryInfo, err)
	}
	return req, nil
}

// QueryInfoResponse is an SMB2 QUERY_INFO response [MS-SMB2] 2.2.38.
// Output holds the raw information buffer; see the Decode* info helpers.
type QueryInfoResponse struct {
	Output []byte
}

// Command implements Response.
func (r *QueryInfoResponse) Command() types.Command { return types.CommandQueryInfo }

// Encode writes the response body.
func (r *QueryInfoResponse) Encode(w *smbenc.Writer) {
	encodeOutputBuffer(w, r.Output)
}

// DecodeQueryInfoResponse decodes a QUERY_INFO response.
func DecodeQueryInfoResponse(reply []byte) (*QueryInfoResponse, error) {
	out, err := decodeOutputBuffer(reply)
	if err != nil {
		return nil, malformed(types.CommandQueryInfo, err)
	}
	return &QueryInfoResponse{Output: out}, nil
}

// encodeOutputBuffer writes the StructureSize 9 offset/length/buffer layout
// shared by QUERY_INFO and QUERY_DIRECTORY responses.
func encodeOutputBuffer(w *smbenc.Writer, out []byte) {
	w.WriteUint16(9)
	if len(out) > 0 {
		w.WriteUint16(header.HeaderSize + 8)
	} else {
		w.WriteUint16(0)
	}
	w.WriteUint32(uint32(len(out)))
	if len(out) == 0 {
		w.WriteUint8(0)
		return
	}
	w.WriteBytes(out)
}

func decodeOutputBuffer(reply []byte) ([]byte, error) {
	r := bodyReader(reply, 9)
	offset := int(r.ReadUint16())
	length := int(r.ReadUint32())
	var out []byte
	if length > 0 {
		out = append([]byte(nil), r.Window(offset, length)...)
	}
	return out, r.Err()
}

// SetInfoRequest is an SMB2 SET_INFO request [MS-SMB2] 2.2.39.
type SetInfoRequest struct {
	InfoType       types.InfoType
	Class          types.FileInfoClass
	AdditionalInfo uint32
	FileID         FileID
	Buffer         []byte
}

// Command implements Request.
func (r *SetInfoRequest) Command() types.Command { return types.CommandSetInfo }

// Target implements Targeted.
func (r *SetInfoRequest) Target() FileID { return r.FileID }

// SetTarget implements Targeted.
func (r *SetInfoRequest) SetTarget(f FileID) { r.FileID = f }

// PayloadSize implements Charged.
func (r *SetInfoRequest) PayloadSize() int { return len(r.Buffer) }

// Encode implements Request.
func (r *SetInfoRequest) Encode(w *smbenc.Writer) {
	w.WriteUint16(33)
	w.WriteUint8(uint8(r.InfoType))
	w.WriteUint8(uint8(r.Class))
	w.WriteUint32(uint32(len(r.Buffer)))
	w.WriteUint16(header.HeaderSize + 32)
	w.WriteUint16(0)
	w.WriteUint32(r.AdditionalInfo)
	r.FileID.encode(w)
	if len(r.Buffer) == 0 {
		w.WriteUint8(0)
		return
	}
	w.WriteBytes(r.Buffer)
}

// DecodeSetInfoRequest decodes a SET_INFO request.
func DecodeSetInfoRequest(msg []byte) (*SetInfoRequest, error) {
	r := bodyReader(msg, 33)
	req := &SetInfoRequest{
		InfoType: types.InfoType(r.ReadUint8()),
		Class:    types.FileInfoClass(r.ReadUint8()),
	}
	length := int(r.ReadUint32())
	offset := int(r.ReadUint16())
	r.Skip(2)
	req.AdditionalInfo = r.ReadUint32()
	req.FileID = readFileID(r)
	if length > 0 {
		req.Buffer = append([]byte(nil), r.Window(offset, length)...)
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandSetInfo, err)
	}
	return req, nil
}

// SetInfoResponse is an SMB2 SET_INFO response [MS-SMB2] 2.2.40.
type SetInfoResponse struct{}

// Command implements Response.
func (r *SetInfoResponse) Command() types.Command { return types.CommandSetInfo }

// Encode writes the response body.
func (r *SetInfoResponse) Encode(w *smbenc.Writer) {
	w.WriteUint16(2)
}

// DecodeSetInfoResponse decodes a SET_INFO response.
func DecodeSetInfoResponse(reply []byte) (*SetInfoResponse, error) {
	r := bodyReader(reply, 2)
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandSetInfo, err)
	}
	return &SetInfoResponse{}, nil
}
