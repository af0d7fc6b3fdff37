package wire

import (
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// IoctlRequest is an SMB2 IOCTL request [MS-SMB2] 2.2.31.
type IoctlRequest struct {
	CtlCode           uint32
	FileID            FileID
	Input             []byte
	MaxOutputResponse uint32
	Flags             uint32
}

// Command implements Request.
func (r *IoctlRequest) Command() types.Command { return types.CommandIoctl }

// Target implements Targeted.
func (r *IoctlRequest) Target() FileID { return r.FileID }

// SetTarget implements Targeted.
func (r *IoctlRequest) SetTarget(f FileID) { r.FileID = f }

// PayloadSize implements Charged.
func (r *IoctlRequest) PayloadSize() int {
	return max(len(r.Input), int(r.MaxOutputResponse))
}

// Encode implements Request.
func (r *IoctlRequest) Encode(w *smbenc.Writer) {
	w.WriteUint16(57)
	w.WriteUint16(0)
	w.WriteUint32(r.CtlCode)
	r.FileID.encode(w)
	if len(r.Input) > 0 {
		w.WriteUint32(header.HeaderSize + 56)
	} else {
		w.WriteUint32(0)
	}
	w.WriteUint32(uint32(len(r.Input)))
	w.WriteUint32(0) // MaxInputResponse
	w.WriteUint32(0) // OutputOffset
	w.WriteUint32(0) // OutputCount
	w.WriteUint32(r.MaxOutputResponse)
	w.WriteUint32(r.Flags)
	w.WriteUint32(0)
	if len(r.Input) == 0 {
		w.WriteUint8(0)
		return
	}
	w.WriteBytes(r.Input)
}

// DecodeIoctlRequest decodes an IOCTL request.
func DecodeIoctlRequest(msg []byte) (*IoctlRequest, error) {
	r := bodyReader(msg, 57)
	r.Skip(2)
	req := &IoctlRequest{CtlCode: r.ReadUint32()}
	req.FileID = readFileID(r)
	inOffset := int(r.ReadUint32())
	inLen := int(r.ReadUint32())
	r.Skip(12)
	req.MaxOutputResponse = r.ReadUint32()
	req.Flags = r.ReadUint32()
	if inLen > 0 {
		req.Input = append([]byte(nil), r.Window(inOffset, inLen)...)
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandIoctl, err)
	}
	return req, nil
}

// IoctlResponse is an SMB2 IOCTL response [MS-SMB2] 2.2.32.
type IoctlResponse struct {
	CtlCode uint32
	FileID  FileID
	Output  []byte
}

// Command implements Response.
func (r *IoctlResponse) Command() types.Command { return types.CommandIoctl }

// Encode writes the response body.
func (r *IoctlResponse) Encode(w *smbenc.Writer) {
	w.WriteUint16(49)
	w.WriteUint16(0)
	w.WriteUint32(r.CtlCode)
	r.FileID.encode(w)
	w.WriteUint32(header.HeaderSize + 48) // InputOffset
	w.WriteUint32(0)                      // InputCount
	w.WriteUint32(header.HeaderSize + 48) // OutputOffset
	w.WriteUint32(uint32(len(r.Output)))
	w.WriteUint32(0)
	w.WriteUint32(0)
	if len(r.Output) == 0 {
		w.WriteUint8(0)
		return
	}
	w.WriteBytes(r.Output)
}

// DecodeIoctlResponse decodes an IOCTL response.
func DecodeIoctlResponse(reply []byte) (*IoctlResponse, error) {
	r := bodyReader(reply, 49)
	r.Skip(2)
	resp := &IoctlResponse{CtlCode: r.ReadUint32()}
	resp.FileID = readFileID(r)
	r.Skip(8)
	outOffset := int(r.ReadUint32())
	outLen := int(r.ReadUint32())
	if outLen > 0 {
		resp.Output = append([]byte(nil), r.Window(outOffset, outLen)...)
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandIoctl, err)
	}
	return resp, nil
}

// QueryDirectoryRequest is an SMB2 QUERY_DIRECTORY request [MS-SMB2] 2.2.33.
type QueryDirectoryRequest struct {
	Class              types.FileInfoClass
	Flags              uint8
	FileIndex          uint32
	FileID             FileID
	Pattern            string
	OutputBufferLength uint32
}

// Command implements Request.
func (r *QueryDirectoryRequest) Command() types.Command { return types.CommandQueryDirectory }

// Target implements Targeted.
func (r *QueryDirectoryRequest) Target() FileID { return r.FileID }

// SetTarget implements Targeted.
func (r *QueryDirectoryRequest) SetTarget(f FileID) { r.FileID = f }

// PayloadSize implements Charged.
func (r *QueryDirectoryRequest) PayloadSize() int { return int(r.OutputBufferLength) }

// Encode implements Request.
func (r *QueryDirectoryRequest) Encode(w *smbenc.Writer) {
	w.WriteUint16(33)
	w.WriteUint8(uint8(r.Class))
	w.WriteUint8(r.Flags)
	w.WriteUint32(r.FileIndex)
	r.FileID.encode(w)
	nameLen := smbenc.UTF16Len(r.Pattern)
	if nameLen > 0 {
		w.WriteUint16(header.HeaderSize + 32)
	} else {
		w.WriteUint16(0)
	}
	w.WriteUint16(uint16(nameLen))
	w.WriteUint32(r.OutputBufferLength)
	if nameLen == 0 {
		w.WriteUint8(0)
		return
	}
	w.WriteUTF16(r.Pattern)
}

// DecodeQueryDirectoryRequest decodes a QUERY_DIRECTORY request.
func DecodeQueryDirectoryRequest(msg []byte) (*QueryDirectoryRequest, error) {
	r := bodyReader(msg, 33)
	req := &QueryDirectoryRequest{
		Class: types.FileInfoClass(r.ReadUint8()),
		Flags: r.ReadUint8(),
	}
	req.FileIndex = r.ReadUint32()
	req.FileID = readFileID(r)
	nameOffset := int(r.ReadUint16())
	nameLen := int(r.ReadUint16())
	req.OutputBufferLength = r.ReadUint32()
	if nameLen > 0 {
		req.Pattern = smbenc.DecodeUTF16LE(r.Window(nameOffset, nameLen))
	}
	if err := r.Err(); err != nil {
		return nil, malformed(types.CommandQueryDirectory, err)
	}
	return req, nil
}

// QueryDirectoryResponse is an SMB2 QUERY_DIRECTORY response [MS-SMB2] 2.2.34.
type QueryDirectoryResponse struct {
	Output []byte
}

// Command implements Response.
func (r *QueryDirectoryResponse) Command() types.Command { return types.CommandQueryDirectory }

// Encode writes the response body.
func (r *QueryDirectoryResponse) Encode(w *smbenc.Writer) {
	encodeOutputBuffer(w, r.Output)
}

// DecodeQueryDirectoryResponse decodes a QUERY_DIRECTORY response.
func DecodeQueryDirectoryResponse(reply []byte) (*QueryDirectoryResponse, error) {
	out, err := decodeOutputBuffer(reply)
	if err != nil {
		return nil, malformed(types.CommandQueryDirectory, err)
	}
	return &QueryDirectoryResponse{Output: out}, nil
}
