package header

import (
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// HeaderSize is the fixed size of SMB2 header (64 bytes).
const HeaderSize = 64

// CompoundAlignment is the alignment every command in a chain starts on.
const CompoundAlignment = 8

// Header represents the common SMB2 message header.
//
// Some fields have different meanings based on context:
//   - Status: NT_STATUS in responses, ChannelSequence in requests
//   - Credits: CreditRequest in requests, CreditResponse in responses
//   - Reserved/TreeID: AsyncID when FlagAsync is set
//
// [MS-SMB2] Section 2.2.1
type Header struct {
	CreditCharge uint16
	Status       types.Status
	Command      types.Command
	Credits      uint16
	Flags        types.HeaderFlags
	NextCommand  uint32
	MessageID    uint64
	Reserved     uint32
	TreeID       uint32
	SessionID    uint64
	Signature    [16]byte
}

// AsyncID returns the async identifier of an async header.
func (h *Header) AsyncID() uint64 {
	return uint64(h.TreeID)<<32 | uint64(h.Reserved)
}

// SetAsyncID stores id in the Reserved/TreeID pair and marks the header async.
func (h *Header) SetAsyncID(id uint64) {
	h.Flags |= types.FlagAsync
	h.Reserved = uint32(id)
	h.TreeID = uint32(id >> 32)
}

// IsLast reports whether this is the final command of its chain.
func (h *Header) IsLast() bool {
	return h.NextCommand == 0
}
