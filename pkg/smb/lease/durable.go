package lease

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// DurableState is the lifecycle state of a DurableHandle.
type DurableState uint8

const (
	DurableIdle DurableState = iota
	DurablePending
	DurableGranted
	DurableFreed
)

func (s DurableState) String() string {
	switch s {
	case DurableIdle:
		return "idle"
	case DurablePending:
		return "pending"
	case DurableGranted:
		return "granted"
	case DurableFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// DurableHandle is the durable-handle-v2 request record of one open. It is
// owned by the open and follows the same discipline as table entries:
// Request before the CREATE is sent, then Confirm or Free.
type DurableHandle struct {
	mu         sync.Mutex
	createGUID uuid.UUID
	timeout    time.Duration
	persistent bool

	state   DurableState
	fid     wire.FileID
	granted *wire.DurableV2Response
}

// NewDurableHandle returns an idle record asking for a durable, and
// optionally persistent, handle.
func NewDurableHandle(persistent bool, timeout time.Duration) *DurableHandle {
	return &DurableHandle{
		createGUID: uuid.New(),
		timeout:    timeout,
		persistent: persistent,
	}
}

// Request marks the record pending and returns the DH2Q create context to
// attach to the CREATE. Every call uses a new CreateGuid, since a rebuilt
// CREATE is a new open attempt.
func (d *DurableHandle) Request() wire.CreateContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DurableIdle {
		d.createGUID = uuid.New()
	}
	d.state = DurablePending
	d.fid = wire.FileID{}
	d.granted = nil
	req := &wire.DurableV2Request{
		TimeoutMillis: uint32(d.timeout / time.Millisecond),
		Persistent:    d.persistent,
		CreateGUID:    d.createGUID,
	}
	return req.Context()
}

// Confirm records the server's answer to the request. A nil resp means the
// CREATE succeeded without a durable grant and frees the record.
func (d *DurableHandle) Confirm(fid wire.FileID, resp *wire.DurableV2Response) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DurablePending {
		return false
	}
	if resp == nil {
		d.state = DurableFreed
		return false
	}
	d.state = DurableGranted
	d.fid = fid
	d.granted = resp
	return true
}

// Free releases the record. It is safe to call in any state.
func (d *DurableHandle) Free() {
	d.mu.Lock()
	d.state = DurableFreed
	d.granted = nil
	d.mu.Unlock()
}

// State returns the current state.
func (d *DurableHandle) State() DurableState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Granted reports whether the server granted a durable handle.
func (d *DurableHandle) Granted() bool {
	return d.State() == DurableGranted
}

// Persistent reports whether the granted handle is persistent.
func (d *DurableHandle) Persistent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.granted != nil && d.granted.Persistent
}

// CreateGUID returns the CreateGuid of the latest request.
func (d *DurableHandle) CreateGUID() uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createGUID
}

// FileID returns the handle the grant applies to.
func (d *DurableHandle) FileID() wire.FileID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fid
}
