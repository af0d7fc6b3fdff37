package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so compound traffic
// can be correlated by message id, file id and path.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyProcedure = "procedure" // High-level operation: open_create, read_stream, prefetch, ...
	KeyCommand   = "command"   // SMB2 command name: CREATE, CLOSE, QUERY_INFO, ...
	KeyPosition  = "position"  // Compound position: first, middle, last
	KeyShare     = "share"     // Share name (\\server\share)
	KeyStatus    = "status"    // NT_STATUS returned by the server

	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeySessionID = "session_id" // SMB2 SessionId
	KeyTreeID    = "tree_id"    // SMB2 TreeId
	KeyMessageID = "message_id" // SMB2 MessageId
	KeyCredits   = "credits"    // Credits granted or available
	KeyRemote    = "remote"     // Remote address of the transport
	KeyChannel   = "channel"    // Channel used after reconnect: same, alternate

	// ========================================================================
	// Handles & Leases
	// ========================================================================
	KeyFileID     = "file_id"     // SMB2 FileId (persistent:volatile)
	KeyLeaseKey   = "lease_key"   // Lease key (uuid form)
	KeyLeaseState = "lease_state" // Lease state bits (R/H/W)
	KeyEpoch      = "epoch"       // Lease epoch

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath    = "path"     // Share-relative path
	KeyStream  = "stream"   // Alternate data stream name
	KeyNewPath = "new_path" // Destination path for rename operations
	KeySize    = "size"     // File size in bytes
	KeyOffset  = "offset"   // File offset for read/write operations
	KeyCount   = "count"    // Byte count requested or transferred
	KeyEntries = "entries"  // Number of directory entries

	// ========================================================================
	// Retry & Batching
	// ========================================================================
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts
	KeySlot       = "slot"        // Async slot index in a prefetch batch
	KeyDepth      = "depth"       // Async batch depth

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// Status returns a slog.Attr for an NT_STATUS
func Status(status fmt.Stringer) slog.Attr {
	return slog.String(KeyStatus, status.String())
}

// MessageID returns a slog.Attr for an SMB2 MessageId
func MessageID(id uint64) slog.Attr {
	return slog.Uint64(KeyMessageID, id)
}

// SessionID returns a slog.Attr for session identifier
func SessionID(id uint64) slog.Attr {
	return slog.String(KeySessionID, fmt.Sprintf("0x%x", id))
}

// FileID returns a slog.Attr for an SMB2 FileId
func FileID(id fmt.Stringer) slog.Attr {
	return slog.String(KeyFileID, id.String())
}

// Err returns a slog.Attr for an error, or an empty attr that handlers
// skip when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
