// Package lease keeps the process-wide table of lease keys handed to the
// server and the per-open durable handle records.
//
// Entries are inserted before the CREATE that requests the lease is sent,
// because the server may break the lease before the CREATE reply reaches
// the client. The owner then confirms the entry with the granted state or
// removes it.
package lease

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// ErrKeyInUse is returned when a speculative insert reuses a key that is
// still in the table.
var ErrKeyInUse = errors.New("lease key already in use")

// State is the grant state of an entry.
type State uint8

const (
	// StatePending means the CREATE requesting the lease is in flight.
	StatePending State = iota
	// StateGranted means the server granted the lease.
	StateGranted
	// StateBroken means the server broke the lease to a lower state.
	StateBroken
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateGranted:
		return "granted"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one lease.
type Entry struct {
	Key       wire.LeaseKey
	ParentKey wire.LeaseKey
	// Requested holds the caching bits asked for.
	Requested uint32
	// Flags holds the caching bits currently held. It is zero while the
	// entry is pending.
	Flags  uint32
	FileID wire.FileID
	State  State
	Epoch  uint16

	// breakState is the state a break delivered before the grant lowered
	// the lease to.
	brokeEarly bool
	breakState uint32
}

// ParentKeySet reports whether the lease was requested with a parent key.
func (e Entry) ParentKeySet() bool { return !e.ParentKey.IsZero() }

// Metrics records lease table activity. A nil Metrics disables recording.
type Metrics interface {
	RecordLeaseEvent(event string)
	SetLeaseEntries(n int)
}

// Table maps lease keys to entries. It is safe for concurrent use; the lock
// is never held across network I/O.
type Table struct {
	mu      sync.RWMutex
	entries map[wire.LeaseKey]*Entry
	metrics Metrics
}

var defaultTable = NewTable(nil)

// Default returns the process-wide table.
func Default() *Table { return defaultTable }

// NewTable returns an empty table.
func NewTable(m Metrics) *Table {
	return &Table{entries: make(map[wire.LeaseKey]*Entry), metrics: m}
}

// SetMetrics installs m as the table's recorder.
func (t *Table) SetMetrics(m Metrics) {
	t.mu.Lock()
	t.metrics = m
	t.mu.Unlock()
}

// NewKey returns a fresh random lease key.
func NewKey() wire.LeaseKey {
	return wire.LeaseKey(uuid.New())
}

// InsertSpeculative adds a pending entry for key. It must be called before
// the CREATE requesting the lease is transmitted.
func (t *Table) InsertSpeculative(key wire.LeaseKey, requested uint32, parent wire.LeaseKey) error {
	t.mu.Lock()
	if _, ok := t.entries[key]; ok {
		t.mu.Unlock()
		return ErrKeyInUse
	}
	t.entries[key] = &Entry{
		Key:       key,
		ParentKey: parent,
		Requested: requested,
		FileID:    wire.PendingFileID,
		State:     StatePending,
	}
	n := len(t.entries)
	t.mu.Unlock()

	t.record("insert", n)
	return nil
}

// Confirm records the grant carried by a successful CREATE reply. A state
// of zero means the server did not grant the lease and the entry is
// removed. If a break arrived before the grant, the entry is confirmed as
// broken with the lower state. Confirm reports whether the entry is now
// held.
func (t *Table) Confirm(key wire.LeaseKey, fid wire.FileID, state uint32, epoch uint16) bool {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if state == types.LeaseStateNone {
		delete(t.entries, key)
		n := len(t.entries)
		t.mu.Unlock()
		t.record("not_granted", n)
		return false
	}

	e.FileID = fid
	if e.brokeEarly {
		e.Flags = state & e.breakState
		e.State = StateBroken
		e.Epoch = max(e.Epoch, epoch)
	} else {
		e.Flags = state
		e.State = StateGranted
		e.Epoch = epoch
	}
	n := len(t.entries)
	t.mu.Unlock()

	t.record("confirm", n)
	return true
}

// Remove drops the entry for key and reports whether it was present.
func (t *Table) Remove(key wire.LeaseKey) bool {
	t.mu.Lock()
	_, ok := t.entries[key]
	delete(t.entries, key)
	n := len(t.entries)
	t.mu.Unlock()

	if ok {
		t.record("remove", n)
	}
	return ok
}

// Lookup returns a snapshot of the entry for key.
func (t *Table) Lookup(key wire.LeaseKey) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Break applies a lease break notification. A break on a pending entry
// clears its caching bits and is remembered until Confirm. Breaks with an
// epoch older than the entry's are ignored. Break reports whether the
// notification was applied.
func (t *Table) Break(key wire.LeaseKey, newState uint32, epoch uint16) bool {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		t.mu.Unlock()
		logger.Debug("Lease break for unknown key", logger.KeyLeaseKey, key.String())
		return false
	}
	if e.State != StatePending && epoch != 0 && int16(epoch-e.Epoch) < 0 {
		t.mu.Unlock()
		t.record("stale_break", -1)
		return false
	}

	switch e.State {
	case StatePending:
		e.Flags = types.LeaseStateNone
		if e.brokeEarly {
			e.breakState &= newState
		} else {
			e.breakState = newState
		}
		e.brokeEarly = true
	default:
		e.Flags &= newState
		e.State = StateBroken
	}
	if epoch != 0 {
		e.Epoch = epoch
	}
	state := e.State
	t.mu.Unlock()

	logger.Debug("Lease broken",
		logger.KeyLeaseKey, key.String(),
		logger.KeyLeaseState, newState,
		logger.KeyEpoch, epoch,
		"entry_state", state.String())
	t.record("break", -1)
	return true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// record reports an event; n < 0 leaves the entries gauge untouched.
func (t *Table) record(event string, n int) {
	t.mu.RLock()
	m := t.metrics
	t.mu.RUnlock()
	if m == nil {
		return
	}
	m.RecordLeaseEvent(event)
	if n >= 0 {
		m.SetLeaseEntries(n)
	}
}
