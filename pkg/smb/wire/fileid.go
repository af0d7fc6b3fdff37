package wire

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
)

// FileIDSize is the encoded size of an SMB2_FILEID.
const FileIDSize = 16

type fileIDKind uint8

const (
	fileIDUnset fileIDKind = iota
	fileIDResolved
	fileIDPending
)

// FileID identifies an open on the server [MS-SMB2] 2.2.14.1.
type FileID struct {
	kind       fileIDKind
	persistent uint64
	volatile   uint64
}

// PendingFileID refers to the handle being opened by the CREATE at the head
// of the same compound. It encodes as 0xFFFFFFFFFFFFFFFF twice.
var PendingFileID = FileID{kind: fileIDPending, persistent: ^uint64(0), volatile: ^uint64(0)}

// NewFileID returns a resolved FileID.
func NewFileID(persistent, volatile uint64) FileID {
	return FileID{kind: fileIDResolved, persistent: persistent, volatile: volatile}
}

// IsPending reports whether f is the in-compound placeholder.
func (f FileID) IsPending() bool { return f.kind == fileIDPending }

// IsResolved reports whether f carries a server-assigned value.
func (f FileID) IsResolved() bool { return f.kind == fileIDResolved }

// IsUnset reports whether f has not been assigned at all.
func (f FileID) IsUnset() bool { return f.kind == fileIDUnset }

// Persistent returns the persistent half.
func (f FileID) Persistent() uint64 { return f.persistent }

// Volatile returns the volatile half.
func (f FileID) Volatile() uint64 { return f.volatile }

// Bytes returns the 16-byte wire form.
func (f FileID) Bytes() [FileIDSize]byte {
	w := smbenc.NewWriter(FileIDSize)
	f.encode(w)
	var b [FileIDSize]byte
	copy(b[:], w.Bytes())
	return b
}

func (f FileID) encode(w *smbenc.Writer) {
	w.WriteUint64(f.persistent)
	w.WriteUint64(f.volatile)
}

// readFileID decodes a FileID. The all-ones value decodes to PendingFileID.
func readFileID(r *smbenc.Reader) FileID {
	p := r.ReadUint64()
	v := r.ReadUint64()
	if p == ^uint64(0) && v == ^uint64(0) {
		return PendingFileID
	}
	return NewFileID(p, v)
}

// DecodeFileID converts a raw 16-byte FileID.
func DecodeFileID(b [FileIDSize]byte) FileID {
	return readFileID(smbenc.NewReader(b[:]))
}

func (f FileID) String() string {
	switch f.kind {
	case fileIDPending:
		return "pending"
	case fileIDUnset:
		return "unset"
	}
	return fmt.Sprintf("%016x:%016x", f.persistent, f.volatile)
}
