// Package header provides SMB2 message header parsing and encoding.
//
// The SMB2 header is a 64-byte structure that prefixes every command in a
// message, including each command of a compound chain.
//
// # Header Structure (64 bytes)
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│ Offset │ Size │ Field           │ Description                       │
//	├────────┼──────┼─────────────────┼───────────────────────────────────┤
//	│   0    │  4   │ ProtocolID      │ 0xFE 'S' 'M' 'B' (0x424D53FE LE)  │
//	│   4    │  2   │ StructureSize   │ Always 64                         │
//	│   6    │  2   │ CreditCharge    │ Credits consumed by this request  │
//	│   8    │  4   │ Status          │ NT_STATUS (response only)         │
//	│  12    │  2   │ Command         │ SMB2 command code                 │
//	│  14    │  2   │ Credits         │ Credits requested/granted         │
//	│  16    │  4   │ Flags           │ Header flags                      │
//	│  20    │  4   │ NextCommand     │ Offset to next command (compound) │
//	│  24    │  8   │ MessageID       │ Unique message identifier         │
//	│  32    │  4   │ Reserved        │ Reserved (ProcessID in sync)      │
//	│  36    │  4   │ TreeID          │ Tree connection identifier        │
//	│  40    │  8   │ SessionID       │ Session identifier                │
//	│  48    │ 16   │ Signature       │ Message signature (if signed)     │
//	└────────┴──────┴─────────────────┴───────────────────────────────────┘
//
// Async headers reuse bytes 32-39 for the 64-bit AsyncId.
//
// # Compound Chains
//
// NextCommand is the distance from the start of this header to the start of
// the next one, always 8-byte aligned; zero marks the last command.
// PeekNextCommand reads that field without validating the rest of the header
// so a damaged header still lets a reader find its successor.
//
// Reference: [MS-SMB2] Section 2.2.1
package header
