package smbenc

import (
	"encoding/binary"
	"unicode/utf16"
)

// AppendUTF16LE appends s to dst as UTF-16LE code units.
func AppendUTF16LE(dst []byte, s string) []byte {
	for _, u := range utf16.Encode([]rune(s)) {
		dst = binary.LittleEndian.AppendUint16(dst, u)
	}
	return dst
}

// EncodeUTF16LE converts a Go string to UTF-16LE bytes.
func EncodeUTF16LE(s string) []byte {
	return AppendUTF16LE(make([]byte, 0, len(s)*2), s)
}

// DecodeUTF16LE converts UTF-16LE bytes to a Go string. A trailing odd byte
// is ignored and invalid sequences decode to U+FFFD.
func DecodeUTF16LE(b []byte) string {
	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16s))
}

// UTF16Len returns the encoded byte length of s.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n * 2
}
