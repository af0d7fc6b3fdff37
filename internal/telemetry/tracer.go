package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for compound engine operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Protocol-agnostic keys use "fs." prefix, SMB-specific ones use "smb.".
const (
	// ========================================================================
	// Server attributes
	// ========================================================================
	AttrServerAddr = "server.address"

	// ========================================================================
	// Filesystem attributes (protocol-agnostic)
	// ========================================================================
	AttrOperation = "fs.operation" // Engine operation name (open, read_stream, ...)
	AttrPath      = "fs.path"      // Share-relative path
	AttrStream    = "fs.stream"    // Alternate data stream name
	AttrOffset    = "fs.offset"    // I/O offset
	AttrCount     = "fs.count"     // Byte count requested
	AttrEntries   = "fs.entries"   // Directory entries processed

	// ========================================================================
	// SMB-specific attributes
	// ========================================================================
	AttrSMBCommand   = "smb.command"
	AttrSMBShape     = "smb.compound.shape"
	AttrSMBLength    = "smb.compound.length"
	AttrSMBMessageID = "smb.message_id"
	AttrSMBSessionID = "smb.session_id"
	AttrSMBTreeID    = "smb.tree_id"
	AttrSMBFileID    = "smb.file_id"
	AttrSMBStatus    = "smb.status"
	AttrSMBCredits   = "smb.credits"
	AttrSMBReplay    = "smb.replay"
	AttrSMBAttempt   = "smb.attempt"
	AttrSMBLeaseKey  = "smb.lease.key"
	AttrSMBLease     = "smb.lease.state"
	AttrSMBEpoch     = "smb.lease.epoch"
	AttrSMBAsyncSlot = "smb.async.slot"
)

// Span names for operations.
// Format: smb.<operation> for protocol spans.
const (
	// Root span for one compound exchange, replays included
	SpanSMBCompound = "smb.compound"

	// One transmission of a compound
	SpanSMBAttempt = "smb.attempt"

	// Fallback close issued after a compound left a handle open
	SpanSMBFallbackClose = "smb.fallback_close"

	// Lease break handling
	SpanSMBLeaseBreak = "smb.lease_break"

	// Asynchronous enumeration batch
	SpanSMBPrefetch = "smb.prefetch"
)

// Event names recorded on compound spans.
const (
	EventReplay         = "smb.replay"
	EventReconnect      = "smb.reconnect"
	EventHandleArmed    = "smb.handle.armed"
	EventHandleClosed   = "smb.handle.closed"
	EventSymlinkLatch   = "smb.symlink.downgrade"
	EventCreditsLow     = "smb.credits.low"
	EventRestartListing = "smb.enumeration.restart"
	EventCommandFailed  = "smb.command.failed"
)

// ServerAddr returns an attribute for the server address
func ServerAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrServerAddr, addr)
}

// SMBCommand returns an attribute for an SMB2 command name
func SMBCommand(name string) attribute.KeyValue {
	return attribute.String(AttrSMBCommand, name)
}

// SMBShape returns an attribute for a compound shape such as "CREATE+READ+CLOSE"
func SMBShape(shape string) attribute.KeyValue {
	return attribute.String(AttrSMBShape, shape)
}

// SMBLength returns an attribute for the number of commands in a compound
func SMBLength(n int) attribute.KeyValue {
	return attribute.Int(AttrSMBLength, n)
}

// SMBMessageID returns an attribute for the first message id of a compound
func SMBMessageID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrSMBMessageID, int64(id))
}

// SMBSessionID returns an attribute for the session id
func SMBSessionID(id uint64) attribute.KeyValue {
	return attribute.String(AttrSMBSessionID, fmt.Sprintf("0x%016x", id))
}

// SMBTreeID returns an attribute for the tree id
func SMBTreeID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrSMBTreeID, int64(id))
}

// SMBFileID returns an attribute for a file id already rendered as text
func SMBFileID(id string) attribute.KeyValue {
	return attribute.String(AttrSMBFileID, id)
}

// SMBStatus returns an attribute for an NT_STATUS name
func SMBStatus(status string) attribute.KeyValue {
	return attribute.String(AttrSMBStatus, status)
}

// SMBCredits returns an attribute for available credits
func SMBCredits(n int) attribute.KeyValue {
	return attribute.Int(AttrSMBCredits, n)
}

// SMBReplay returns an attribute telling whether the replay flag was set
func SMBReplay(replay bool) attribute.KeyValue {
	return attribute.Bool(AttrSMBReplay, replay)
}

// SMBAttempt returns an attribute for the transmission attempt number
func SMBAttempt(n int) attribute.KeyValue {
	return attribute.Int(AttrSMBAttempt, n)
}

// SMBLeaseKey returns an attribute for a lease key
func SMBLeaseKey(key [16]byte) attribute.KeyValue {
	return attribute.String(AttrSMBLeaseKey, fmt.Sprintf("%x", key[:]))
}

// SMBLeaseState returns an attribute for a lease state bitmask
func SMBLeaseState(state uint32) attribute.KeyValue {
	return attribute.Int64(AttrSMBLease, int64(state))
}

// SMBEpoch returns an attribute for a lease epoch
func SMBEpoch(epoch uint16) attribute.KeyValue {
	return attribute.Int(AttrSMBEpoch, int(epoch))
}

// SMBAsyncSlot returns an attribute for an async batch slot index
func SMBAsyncSlot(slot int) attribute.KeyValue {
	return attribute.Int(AttrSMBAsyncSlot, slot)
}

// FSOperation returns an attribute for the engine operation name
func FSOperation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// FSPath returns an attribute for file path
func FSPath(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// FSStream returns an attribute for a stream name
func FSStream(stream string) attribute.KeyValue {
	return attribute.String(AttrStream, stream)
}

// FSOffset returns an attribute for file offset
func FSOffset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// FSCount returns an attribute for byte count
func FSCount(count uint32) attribute.KeyValue {
	return attribute.Int64(AttrCount, int64(count))
}

// FSEntries returns an attribute for the number of directory entries
func FSEntries(n int) attribute.KeyValue {
	return attribute.Int(AttrEntries, n)
}

// StartCompoundSpan starts the root span of one compound operation.
// The span is always named SpanSMBCompound; the operation is an attribute.
func StartCompoundSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		FSOperation(operation),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanSMBCompound, trace.WithAttributes(allAttrs...))
}

// StartSMBSpan starts a span for an internal engine step such as a fallback
// close or a lease break.
func StartSMBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}
