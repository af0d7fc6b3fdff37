// Package types contains SMB2 protocol constants, types, and error codes
// used by the client-side compound engine.
//
// # Overview
//
// This package provides type-safe definitions for SMB2 protocol elements:
//
//   - Command codes (CREATE, CLOSE, READ, WRITE, IOCTL, QUERY_INFO, ...)
//   - Header flags (response, async, related operations, replay)
//   - NT_STATUS codes and their mapping to POSIX errno values
//   - File attributes, access masks, create options and dispositions
//   - Information classes and FSCTL codes
//   - FILETIME conversion utilities
//
// # NT_STATUS Codes
//
// Windows status codes are 32-bit values:
//
//	Bits 31-30: Severity (00=Success, 01=Info, 10=Warning, 11=Error)
//	Bit 29:     Customer code flag
//	Bits 16-28: Facility code
//	Bits 0-15:  Error code
//
// A non-success status carried by a reply is surfaced to callers as a
// *StatusError, which satisfies errors.Is against the io/fs sentinels
// (fs.ErrNotExist, fs.ErrPermission, fs.ErrExist) and exposes the
// equivalent unix.Errno through Errno().
//
// # References
//
//   - [MS-SMB2] Server Message Block Protocol Versions 2 and 3
//   - [MS-ERREF] Windows Error Codes
//   - [MS-FSCC] File System Control Codes
package types
