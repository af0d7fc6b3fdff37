package wire

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// ErrorContext is one error context of an SMB2 ERROR response. Dialects
// before 3.1.1 carry a single context with ID 0.
type ErrorContext struct {
	ID   uint32
	Data []byte
}

// ErrorResponse is the SMB2 ERROR response body [MS-SMB2] 2.2.2.
type ErrorResponse struct {
	Contexts []ErrorContext
}

// Command implements Response. Error bodies are command-agnostic.
func (r *ErrorResponse) Command() types.Command { return types.Command(0xFFFF) }

// Encode writes the response body.
func (r *ErrorResponse) Encode(w *smbenc.Writer) {
	w.WriteUint16(9)
	switch len(r.Contexts) {
	case 0:
		w.WriteUint8(0)
		w.WriteUint8(0)
		w.WriteUint32(0)
		w.WriteUint8(0)
	case 1:
		w.WriteUint8(0)
		w.WriteUint8(0)
		w.WriteUint32(uint32(len(r.Contexts[0].Data)))
		w.WriteBytes(r.Contexts[0].Data)
	default:
		w.WriteUint8(uint8(len(r.Contexts)))
		w.WriteUint8(0)
		countAt := w.Len()
		w.WriteUint32(0)
		start := w.Len()
		for _, c := range r.Contexts {
			w.Pad(8)
			w.WriteUint32(uint32(len(c.Data)))
			w.WriteUint32(c.ID)
			w.WriteBytes(c.Data)
		}
		w.PutUint32At(countAt, uint32(w.Len()-start))
	}
}

// DecodeErrorResponse decodes an ERROR response body. reply starts at the
// SMB2 header.
func DecodeErrorResponse(reply []byte) (*ErrorResponse, error) {
	r := bodyReader(reply, 9)
	count := int(r.ReadUint8())
	r.Skip(1)
	byteCount := int(r.ReadUint32())
	data := r.ReadBytes(byteCount)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: error response: %v", ErrMalformed, err)
	}
	resp := &ErrorResponse{}
	if count == 0 {
		if byteCount > 0 {
			resp.Contexts = []ErrorContext{{Data: data}}
		}
		return resp, nil
	}
	cr := smbenc.NewReader(data)
	for i := 0; i < count; i++ {
		if rem := cr.Position() % 8; rem != 0 && i > 0 {
			cr.Skip(8 - rem)
		}
		n := int(cr.ReadUint32())
		id := cr.ReadUint32()
		resp.Contexts = append(resp.Contexts, ErrorContext{ID: id, Data: cr.ReadBytes(n)})
	}
	if err := cr.Err(); err != nil {
		return nil, fmt.Errorf("%w: error contexts: %v", ErrMalformed, err)
	}
	return resp, nil
}

// Symlink flags [MS-FSCC] 2.1.2.4
const SymlinkFlagRelative uint32 = 0x00000001

const symlinkErrorTag uint32 = 0x4C4D5953 // "SYML"

// SymlinkTarget describes a symbolic link as reported by either the
// STOPPED_ON_SYMLINK error context or FSCTL_GET_REPARSE_POINT.
type SymlinkTarget struct {
	SubstituteName string
	PrintName      string
	Flags          uint32
	// UnparsedPathLength is the byte length of the part of the original
	// path that follows the link. Only set from error responses.
	UnparsedPathLength uint16
}

// IsRelative reports whether the target is relative to the link's directory.
func (s *SymlinkTarget) IsRelative() bool { return s.Flags&SymlinkFlagRelative != 0 }

// Target returns the substitute name with NT namespace prefixes removed.
func (s *SymlinkTarget) Target() string {
	t := s.SubstituteName
	switch {
	case strings.HasPrefix(t, `\??\UNC\`):
		return `\\` + t[8:]
	case strings.HasPrefix(t, `\??\`):
		return t[4:]
	}
	return t
}

// EncodeSymlinkReparse encodes a symbolic link REPARSE_DATA_BUFFER
// [MS-FSCC] 2.1.2.4.
func EncodeSymlinkReparse(w *smbenc.Writer, s *SymlinkTarget) {
	sub := smbenc.EncodeUTF16LE(s.SubstituteName)
	prn := smbenc.EncodeUTF16LE(s.PrintName)
	w.WriteUint32(types.ReparseTagSymlink)
	w.WriteUint16(uint16(12 + len(sub) + len(prn)))
	w.WriteUint16(0)
	encodeSymlinkPaths(w, s.Flags, sub, prn)
}

func encodeSymlinkPaths(w *smbenc.Writer, flags uint32, sub, prn []byte) {
	w.WriteUint16(0)
	w.WriteUint16(uint16(len(sub)))
	w.WriteUint16(uint16(len(sub)))
	w.WriteUint16(uint16(len(prn)))
	w.WriteUint32(flags)
	w.WriteBytes(sub)
	w.WriteBytes(prn)
}

// DecodeSymlinkReparse decodes a symbolic link REPARSE_DATA_BUFFER.
func DecodeSymlinkReparse(buf []byte) (*SymlinkTarget, error) {
	r := smbenc.NewReader(buf)
	tag := r.ReadUint32()
	r.Skip(4)
	if r.Err() == nil && tag != types.ReparseTagSymlink {
		return nil, fmt.Errorf("%w: reparse tag 0x%08X is not a symlink", ErrMalformed, tag)
	}
	return decodeSymlinkPaths(r, 20)
}

// EncodeSymlinkError encodes a Symbolic Link Error Response [MS-SMB2] 2.2.2.2.1.
func EncodeSymlinkError(s *SymlinkTarget) []byte {
	sub := smbenc.EncodeUTF16LE(s.SubstituteName)
	prn := smbenc.EncodeUTF16LE(s.PrintName)
	w := smbenc.NewWriter(28 + len(sub) + len(prn))
	w.WriteUint32(uint32(24 + len(sub) + len(prn)))
	w.WriteUint32(symlinkErrorTag)
	w.WriteUint32(types.ReparseTagSymlink)
	w.WriteUint16(uint16(12 + len(sub) + len(prn)))
	w.WriteUint16(s.UnparsedPathLength)
	encodeSymlinkPaths(w, s.Flags, sub, prn)
	return w.Bytes()
}

// DecodeSymlinkError decodes a Symbolic Link Error Response found in the
// error contexts of a STATUS_STOPPED_ON_SYMLINK reply.
func DecodeSymlinkError(e *ErrorResponse) (*SymlinkTarget, error) {
	for _, c := range e.Contexts {
		if c.ID != 0 {
			continue
		}
		r := smbenc.NewReader(c.Data)
		r.Skip(4)
		if tag := r.ReadUint32(); r.Err() == nil && tag != symlinkErrorTag {
			continue
		}
		r.Skip(6)
		unparsed := r.ReadUint16()
		s, err := decodeSymlinkPaths(r, 28)
		if err != nil {
			return nil, err
		}
		s.UnparsedPathLength = unparsed
		return s, nil
	}
	return nil, fmt.Errorf("%w: no symbolic link error context", ErrMalformed)
}

func decodeSymlinkPaths(r *smbenc.Reader, base int) (*SymlinkTarget, error) {
	subOff := int(r.ReadUint16())
	subLen := int(r.ReadUint16())
	prnOff := int(r.ReadUint16())
	prnLen := int(r.ReadUint16())
	s := &SymlinkTarget{Flags: r.ReadUint32()}
	s.SubstituteName = smbenc.DecodeUTF16LE(r.Window(base+subOff, subLen))
	s.PrintName = smbenc.DecodeUTF16LE(r.Window(base+prnOff, prnLen))
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: symlink: %v", ErrMalformed, err)
	}
	return s, nil
}
