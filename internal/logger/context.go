package logger

import (
	"context"
	"time"
)

type contextKey struct{}

// LogContext holds the fields of one filesystem operation that every log
// line written on its behalf carries.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Procedure string    // Client operation (open_create, read_stream, ...)
	Share     string    // Share name
	Path      string    // Share-relative path the operation targets
	SessionID uint64    // SMB2 SessionId
	StartTime time.Time // When the operation began
}

// WithContext returns a new context carrying lc
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given share
func NewLogContext(share string) *LogContext {
	return &LogContext{Share: share, StartTime: time.Now()}
}

// Operation describes one filesystem operation.
type Operation struct {
	Procedure string
	Path      string
	SessionID uint64
	TraceID   string
	SpanID    string
}

// StartOperation returns ctx carrying a LogContext for op. The share of an
// enclosing LogContext is inherited; the remaining fields and the start
// time belong to op.
func StartOperation(ctx context.Context, op Operation) context.Context {
	lc := &LogContext{
		TraceID:   op.TraceID,
		SpanID:    op.SpanID,
		Procedure: op.Procedure,
		Path:      op.Path,
		SessionID: op.SessionID,
		StartTime: time.Now(),
	}
	if parent := FromContext(ctx); parent != nil {
		lc.Share = parent.Share
	}
	return WithContext(ctx, lc)
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// DurationMs returns the time since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

// fields returns the non-empty fields of lc as alternating key/value
// arguments, in the order they appear on a log line.
func (lc *LogContext) fields() []any {
	var out []any
	for _, kv := range [...]struct{ key, val string }{
		{KeyTraceID, lc.TraceID},
		{KeySpanID, lc.SpanID},
		{KeyProcedure, lc.Procedure},
		{KeyShare, lc.Share},
		{KeyPath, lc.Path},
	} {
		if kv.val != "" {
			out = append(out, kv.key, kv.val)
		}
	}
	if lc.SessionID != 0 {
		out = append(out, SessionID(lc.SessionID))
	}
	return out
}
