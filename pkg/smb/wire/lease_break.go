package wire

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

const (
	leaseBreakNotificationSize = 44
	leaseBreakAckSize          = 36
)

// LeaseBreakNotification is the server-initiated lease break
// [MS-SMB2] 2.2.23.2. It arrives as an OPLOCK_BREAK with MessageId
// 0xFFFFFFFFFFFFFFFF outside any compound.
type LeaseBreakNotification struct {
	NewEpoch          uint16
	Flags             uint32
	Key               LeaseKey
	CurrentLeaseState uint32
	NewLeaseState     uint32
}

// AckRequired reports whether the server waits for an acknowledgment.
func (n *LeaseBreakNotification) AckRequired() bool {
	return n.Flags&types.LeaseFlagBreakInProgress != 0
}

// Encode writes the notification body.
func (n *LeaseBreakNotification) Encode(w *smbenc.Writer) {
	w.WriteUint16(leaseBreakNotificationSize)
	w.WriteUint16(n.NewEpoch)
	w.WriteUint32(n.Flags)
	w.WriteBytes(n.Key[:])
	w.WriteUint32(n.CurrentLeaseState)
	w.WriteUint32(n.NewLeaseState)
	w.WriteUint32(0) // BreakReason
	w.WriteUint32(0) // AccessMaskHint
	w.WriteUint32(0) // ShareMaskHint
}

// DecodeLeaseBreakNotification decodes a lease break. msg starts at the SMB2 header.
func DecodeLeaseBreakNotification(msg []byte) (*LeaseBreakNotification, error) {
	r := bodyReader(msg, leaseBreakNotificationSize)
	n := &LeaseBreakNotification{NewEpoch: r.ReadUint16(), Flags: r.ReadUint32()}
	copy(n.Key[:], r.ReadBytes(16))
	n.CurrentLeaseState = r.ReadUint32()
	n.NewLeaseState = r.ReadUint32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: lease break: %v", ErrMalformed, err)
	}
	return n, nil
}

// LeaseBreakAck acknowledges a lease break [MS-SMB2] 2.2.24.2. The server's
// lease break response [MS-SMB2] 2.2.25.2 has the same layout.
type LeaseBreakAck struct {
	Key        LeaseKey
	LeaseState uint32
}

// Command implements Request.
func (a *LeaseBreakAck) Command() types.Command { return types.CommandOplockBreak }

// Encode implements Request.
func (a *LeaseBreakAck) Encode(w *smbenc.Writer) {
	w.WriteUint16(leaseBreakAckSize)
	w.WriteUint16(0)
	w.WriteUint32(0)
	w.WriteBytes(a.Key[:])
	w.WriteUint32(a.LeaseState)
	w.WriteUint64(0)
}

// DecodeLeaseBreakAck decodes a lease break acknowledgment or response.
func DecodeLeaseBreakAck(msg []byte) (*LeaseBreakAck, error) {
	r := bodyReader(msg, leaseBreakAckSize)
	r.Skip(6)
	a := &LeaseBreakAck{}
	copy(a.Key[:], r.ReadBytes(16))
	a.LeaseState = r.ReadUint32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: lease break ack: %v", ErrMalformed, err)
	}
	return a, nil
}
