package header

import (
	"encoding/binary"
	"errors"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// Parsing errors
var (
	// ErrInvalidProtocolID indicates the message doesn't start with 0xFE 'S' 'M' 'B'.
	ErrInvalidProtocolID = errors.New("invalid SMB2 protocol ID")

	// ErrMessageTooShort indicates the message is too short to contain an SMB2 header.
	ErrMessageTooShort = errors.New("message too short for SMB2 header")

	// ErrInvalidHeaderSize indicates the header structure size field is not 64.
	ErrInvalidHeaderSize = errors.New("invalid SMB2 header structure size")
)

// Parse extracts a Header from wire format (little-endian).
//
// The input data must be at least 64 bytes and start with a valid SMB2 protocol ID.
func Parse(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrMessageTooShort
	}

	r := smbenc.NewReader(data[:HeaderSize])
	if r.ReadUint32() != types.SMB2ProtocolID {
		return nil, ErrInvalidProtocolID
	}
	if r.ReadUint16() != HeaderSize {
		return nil, ErrInvalidHeaderSize
	}

	h := &Header{
		CreditCharge: r.ReadUint16(),
		Status:       types.Status(r.ReadUint32()),
		Command:      types.Command(r.ReadUint16()),
		Credits:      r.ReadUint16(),
		Flags:        types.HeaderFlags(r.ReadUint32()),
		NextCommand:  r.ReadUint32(),
		MessageID:    r.ReadUint64(),
		Reserved:     r.ReadUint32(),
		TreeID:       r.ReadUint32(),
		SessionID:    r.ReadUint64(),
	}
	copy(h.Signature[:], r.ReadBytes(16))
	if err := r.Err(); err != nil {
		return nil, err
	}
	return h, nil
}

// PeekNextCommand returns the NextCommand field of the header starting at
// data[0] without validating anything else. ok is false when fewer than 24
// bytes are available.
func PeekNextCommand(data []byte) (next uint32, ok bool) {
	if len(data) < 24 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[20:24]), true
}

// IsSMB2Message checks if the data starts with a valid SMB2 protocol ID.
func IsSMB2Message(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(data[0:4]) == types.SMB2ProtocolID
}
