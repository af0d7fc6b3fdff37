package handle

import (
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// Observer feeds a Guard from the walk of one unit. A successful CREATE
// arms the guard as soon as its body decodes; a CLOSE disarms it once its
// reply header shows the handle is gone. Any other CLOSE outcome leaves
// the guard armed for the fallback close.
type Observer struct {
	Guard *Guard
	Path  string

	// OnHeader and OnCompleted, when set, see every located reply header
	// and every final command outcome.
	OnHeader    func(c *compound.Command, h *header.Header)
	OnCompleted func(c *compound.Command)
}

var _ compound.Observer = (*Observer)(nil)

// HeaderParsed implements compound.Observer.
func (o *Observer) HeaderParsed(c *compound.Command, h *header.Header) {
	if o.OnHeader != nil {
		o.OnHeader(c, h)
	}
	if c.Command() != types.CommandClose || !closeSettled(h.Status) {
		return
	}
	if t, ok := c.Req.(wire.Targeted); ok {
		o.Guard.Disarm(t.Target())
	}
}

// Completed implements compound.Observer.
func (o *Observer) Completed(c *compound.Command) {
	if cr, ok := c.Result.(*wire.CreateResponse); ok {
		o.Guard.Arm(cr.FileID, o.Path)
	}
	if o.OnCompleted != nil {
		o.OnCompleted(c)
	}
}

// closeSettled reports whether a CLOSE answered with st left no handle
// behind on the server. Any other failure keeps the guard armed, so the
// handle gets one more standalone CLOSE.
func closeSettled(st types.Status) bool {
	return st.IsSuccess() || st == types.StatusFileClosed || st == types.StatusInvalidHandle
}
