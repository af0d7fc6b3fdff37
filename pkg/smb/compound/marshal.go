package compound

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// MessageIDAllocator hands out message ids and credit requests for a unit.
type MessageIDAllocator interface {
	// AllocateMessageIDs reserves one message id per charge. A command with
	// charge n consumes n consecutive ids; the first is returned.
	AllocateMessageIDs(charges []uint16) ([]uint64, error)

	// CreditRequest returns the number of credits to ask for on a command
	// with the given charge.
	CreditRequest(charge uint16) uint16
}

// Marshal serializes the unit. Every call allocates fresh message ids, so a
// rebuilt unit never reuses the ids of an earlier attempt.
func (u *Unit) Marshal(alloc MessageIDAllocator, sessionID uint64, treeID uint32) ([]byte, error) {
	if len(u.cmds) == 0 {
		return nil, ErrEmptyUnit
	}
	if len(u.cmds) > 1 && !u.sealed {
		return nil, fmt.Errorf("%w: unit of %d commands has no last command", ErrBuildFailed, len(u.cmds))
	}

	charges := make([]uint16, len(u.cmds))
	for i, c := range u.cmds {
		charges[i] = wire.CreditCharge(c.Req)
	}
	ids, err := alloc.AllocateMessageIDs(charges)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(u.cmds) {
		return nil, fmt.Errorf("%w: allocator returned %d ids for %d commands", ErrBuildFailed, len(ids), len(u.cmds))
	}

	w := smbenc.NewWriter(512)
	for i, c := range u.cmds {
		c.MessageID = ids[i]
		c.CreditCharge = charges[i]

		hdr := &header.Header{
			CreditCharge: c.CreditCharge,
			Command:      c.Command(),
			Credits:      alloc.CreditRequest(c.CreditCharge),
			MessageID:    c.MessageID,
			TreeID:       treeID,
			SessionID:    sessionID,
		}
		if i > 0 {
			hdr.Flags |= types.FlagRelated
		}
		if u.replay {
			hdr.Flags |= types.FlagReplayOperation
		}

		start := w.Len()
		hdr.EncodeTo(w)
		c.Req.Encode(w)
		if i < len(u.cmds)-1 {
			w.Pad(header.CompoundAlignment)
			// NextCommand sits at offset 20 of the header.
			w.PutUint32At(start+20, uint32(w.Len()-start))
		}
	}
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	return w.Bytes(), nil
}

// MessageIDs returns the message id of every command as assigned by the
// latest Marshal.
func (u *Unit) MessageIDs() []uint64 {
	ids := make([]uint64, len(u.cmds))
	for i, c := range u.cmds {
		ids[i] = c.MessageID
	}
	return ids
}
