package header

import (
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// Encode serializes the header to wire format (little-endian).
func (h *Header) Encode() []byte {
	w := smbenc.NewWriter(HeaderSize)
	h.EncodeTo(w)
	return w.Bytes()
}

// EncodeTo appends the header to w.
func (h *Header) EncodeTo(w *smbenc.Writer) {
	w.WriteUint32(types.SMB2ProtocolID)
	w.WriteUint16(HeaderSize)
	w.WriteUint16(h.CreditCharge)
	w.WriteUint32(uint32(h.Status))
	w.WriteUint16(uint16(h.Command))
	w.WriteUint16(h.Credits)
	w.WriteUint32(uint32(h.Flags))
	w.WriteUint32(h.NextCommand)
	w.WriteUint64(h.MessageID)
	w.WriteUint32(h.Reserved)
	w.WriteUint32(h.TreeID)
	w.WriteUint64(h.SessionID)
	w.WriteBytes(h.Signature[:])
}

// NewResponseHeader creates a response header answering req.
func NewResponseHeader(req *Header, status types.Status, credits uint16) *Header {
	return &Header{
		CreditCharge: req.CreditCharge,
		Status:       status,
		Command:      req.Command,
		Credits:      credits,
		Flags:        types.FlagResponse | (req.Flags & types.FlagRelated),
		MessageID:    req.MessageID,
		Reserved:     req.Reserved,
		TreeID:       req.TreeID,
		SessionID:    req.SessionID,
	}
}
