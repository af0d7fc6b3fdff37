// Package handle tracks file handles opened by a compound invocation and
// closes the ones the invocation did not close itself.
package handle

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// DefaultCloseTimeout bounds the fallback CLOSE.
const DefaultCloseTimeout = 5 * time.Second

// Closer issues a standalone CLOSE for a handle.
type Closer interface {
	CloseHandle(ctx context.Context, fid wire.FileID) error
}

// CloserFunc adapts a function to Closer.
type CloserFunc func(ctx context.Context, fid wire.FileID) error

// CloseHandle implements Closer.
func (f CloserFunc) CloseHandle(ctx context.Context, fid wire.FileID) error {
	return f(ctx, fid)
}

// Outcome is what Release did.
type Outcome int

const (
	// OutcomeNone means no handle needed closing.
	OutcomeNone Outcome = iota
	// OutcomeClosed means the fallback CLOSE succeeded.
	OutcomeClosed
	// OutcomeFailed means the fallback CLOSE was attempted and failed.
	OutcomeFailed
)

// String returns the metric label of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeClosed:
		return "closed"
	case OutcomeFailed:
		return "failed"
	default:
		return "none"
	}
}

// Guard is the needs-close state of one compound invocation.
//
// Arm is called the moment a CREATE reply decodes; Disarm once the
// in-compound CLOSE for the same handle has been answered. Release runs in
// the invocation's single cleanup phase and closes whatever is still armed.
// A Guard is released at most once and is not reused across attempts.
type Guard struct {
	closer  Closer
	timeout time.Duration

	mu       sync.Mutex
	fid      wire.FileID
	path     string
	armed    bool
	released bool
}

// NewGuard returns a disarmed guard. A non-positive timeout selects
// DefaultCloseTimeout.
func NewGuard(closer Closer, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}
	return &Guard{closer: closer, timeout: timeout}
}

// Arm records fid as open and not yet closed.
func (g *Guard) Arm(fid wire.FileID, path string) {
	if !fid.IsResolved() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		logger.Warn("Handle opened after cleanup ran", logger.FileID(fid), logger.KeyPath, path)
		return
	}
	g.fid, g.path, g.armed = fid, path, true
}

// Disarm clears the needs-close state if fid is the armed handle. The
// pending sentinel matches the armed handle, since that is how CLOSE
// addresses it inside the compound.
func (g *Guard) Disarm(fid wire.FileID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed && (fid.IsPending() || fid == g.fid) {
		g.armed = false
	}
}

// Detach hands the armed handle to the caller, which becomes responsible
// for closing it. The zero FileID is returned when nothing is armed.
func (g *Guard) Detach() wire.FileID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed {
		return wire.FileID{}
	}
	g.armed = false
	return g.fid
}

// Armed reports whether a handle still needs closing.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// FileID returns the most recently armed handle.
func (g *Guard) FileID() wire.FileID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fid
}

// Release closes the armed handle, if any. The CLOSE runs even when ctx is
// already cancelled; its failure is logged and reported only through the
// Outcome.
func (g *Guard) Release(ctx context.Context) Outcome {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return OutcomeNone
	}
	g.released = true
	armed, fid, path := g.armed, g.fid, g.path
	g.armed = false
	g.mu.Unlock()

	if !armed {
		return OutcomeNone
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	if err := g.closer.CloseHandle(ctx, fid); err != nil {
		logger.WarnCtx(ctx, "Fallback close failed",
			logger.FileID(fid),
			logger.KeyPath, path,
			logger.Err(err))
		return OutcomeFailed
	}
	logger.DebugCtx(ctx, "Fallback close", logger.FileID(fid), logger.KeyPath, path)
	return OutcomeClosed
}
