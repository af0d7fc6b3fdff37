// Package smbenc provides little-endian readers and writers for SMB2 wire
// data with sticky error accumulation.
//
// A Reader or Writer records the first failure and turns every later call
// into a no-op, so codecs can decode or encode a whole structure and check
// Err() once at the end:
//
//	r := smbenc.NewReader(body)
//	size := r.ReadUint16()
//	flags := r.ReadUint8()
//	if err := r.Err(); err != nil {
//		return err
//	}
//
// Offset/length pairs used by SMB2 bodies (buffers addressed from the start
// of the SMB2 header) are resolved with Reader.Window, which bounds-checks the
// pair against the underlying message.
package smbenc
