package wire

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

var (
	// ErrInvalidArgument reports a request that cannot be built from the
	// given parameters. No network activity happens for such requests.
	ErrInvalidArgument = errors.New("wire: invalid argument")

	// ErrMalformed reports a body that does not decode.
	ErrMalformed = errors.New("wire: malformed body")

	// ErrUnsupportedCommand reports a command without a codec in this package.
	ErrUnsupportedCommand = errors.New("wire: unsupported command")
)

// Request is one SMB2 command body that can be placed in a compound.
type Request interface {
	Command() types.Command
	// Encode appends the body. Offsets written into the body are relative
	// to the start of the command's SMB2 header.
	Encode(w *smbenc.Writer)
}

// Targeted is implemented by requests that operate on an open handle.
type Targeted interface {
	Request
	Target() FileID
	SetTarget(FileID)
}

// Charged is implemented by requests whose payload exceeds a single credit.
type Charged interface {
	PayloadSize() int
}

// Response is a decoded response body.
type Response interface {
	Command() types.Command
}

// creditUnit is the payload covered by one credit [MS-SMB2] 3.1.5.2.
const creditUnit = 65536

// CreditCharge returns the credit charge of req.
func CreditCharge(req Request) uint16 {
	c, ok := req.(Charged)
	if !ok {
		return 1
	}
	return PayloadCharge(c.PayloadSize())
}

// PayloadCharge returns the credit charge of a command moving size bytes.
func PayloadCharge(size int) uint16 {
	if size <= 0 {
		return 1
	}
	return uint16((size-1)/creditUnit + 1)
}

// malformed wraps err as ErrMalformed for the given command.
func malformed(cmd types.Command, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrMalformed, cmd, err)
}

// bodyReader returns a reader over reply positioned at the start of the body
// after validating the structure size.
func bodyReader(reply []byte, structureSize uint16) *smbenc.Reader {
	r := smbenc.NewReader(reply)
	r.Seek(header.HeaderSize)
	r.ExpectUint16(structureSize)
	return r
}

// DecodeResponse decodes the response body of the reply for cmd. reply starts
// at the command's SMB2 header.
func DecodeResponse(cmd types.Command, reply []byte) (Response, error) {
	switch cmd {
	case types.CommandCreate:
		return DecodeCreateResponse(reply)
	case types.CommandClose:
		return DecodeCloseResponse(reply)
	case types.CommandRead:
		return DecodeReadResponse(reply)
	case types.CommandWrite:
		return DecodeWriteResponse(reply)
	case types.CommandQueryInfo:
		return DecodeQueryInfoResponse(reply)
	case types.CommandSetInfo:
		return DecodeSetInfoResponse(reply)
	case types.CommandIoctl:
		return DecodeIoctlResponse(reply)
	case types.CommandQueryDirectory:
		return DecodeQueryDirectoryResponse(reply)
	case types.CommandFlush:
		return DecodeFlushResponse(reply)
	case types.CommandOplockBreak:
		return DecodeLeaseBreakAck(reply)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd)
}

// DecodeRequest decodes a request body. msg starts at the command's SMB2 header.
func DecodeRequest(cmd types.Command, msg []byte) (Request, error) {
	switch cmd {
	case types.CommandCreate:
		return DecodeCreateRequest(msg)
	case types.CommandClose:
		return DecodeCloseRequest(msg)
	case types.CommandRead:
		return DecodeReadRequest(msg)
	case types.CommandWrite:
		return DecodeWriteRequest(msg)
	case types.CommandQueryInfo:
		return DecodeQueryInfoRequest(msg)
	case types.CommandSetInfo:
		return DecodeSetInfoRequest(msg)
	case types.CommandIoctl:
		return DecodeIoctlRequest(msg)
	case types.CommandQueryDirectory:
		return DecodeQueryDirectoryRequest(msg)
	case types.CommandFlush:
		return DecodeFlushRequest(msg)
	case types.CommandOplockBreak:
		return DecodeLeaseBreakAck(msg)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd)
}

// EncodeBody encodes a request or response body into a fresh buffer.
func EncodeBody(enc interface{ Encode(*smbenc.Writer) }) ([]byte, error) {
	w := smbenc.NewWriter(128)
	enc.Encode(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
