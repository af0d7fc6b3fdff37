// Package compound chains SMB2 commands into a single compound request and
// walks the matching compound response.
//
// A Unit is built with Start and Chain. Commands that operate on the handle
// opened by a leading CREATE carry wire.PendingFileID, so the server applies
// them to that handle. Marshal serializes the unit with fresh message ids,
// related flags and 8-byte aligned NextCommand offsets.
//
// Walk consumes the reply stream one command at a time through a fixed
// sequence of stages:
//
//	locate -> header -> status -> body
//
// Only a failure to locate a reply aborts the walk. Any other failure is
// recorded on its command and the walk moves on, so later commands (most
// importantly a trailing CLOSE) are always examined.
package compound
