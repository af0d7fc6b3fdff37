package lease

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

const readHandle = types.LeaseStateRead | types.LeaseStateHandle

type countingMetrics struct {
	mu      sync.Mutex
	events  map[string]int
	entries int
}

func (m *countingMetrics) RecordLeaseEvent(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(map[string]int)
	}
	m.events[event]++
}

func (m *countingMetrics) SetLeaseEntries(n int) {
	m.mu.Lock()
	m.entries = n
	m.mu.Unlock()
}

func TestTableGrant(t *testing.T) {
	m := &countingMetrics{}
	tbl := NewTable(m)
	key := NewKey()
	fid := wire.NewFileID(10, 20)

	require.NoError(t, tbl.InsertSpeculative(key, readHandle, wire.LeaseKey{}))
	e, ok := tbl.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, StatePending, e.State)
	assert.True(t, e.FileID.IsPending())
	assert.Zero(t, e.Flags)

	assert.True(t, tbl.Confirm(key, fid, readHandle, 1))
	e, ok = tbl.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, StateGranted, e.State)
	assert.Equal(t, fid, e.FileID)
	assert.Equal(t, readHandle, e.Flags)
	assert.Equal(t, 1, m.entries)
	assert.Equal(t, 1, m.events["confirm"])
}

func TestTableFailOrRetryRemoves(t *testing.T) {
	tbl := NewTable(nil)

	t.Run("failed create", func(t *testing.T) {
		key := NewKey()
		require.NoError(t, tbl.InsertSpeculative(key, readHandle, wire.LeaseKey{}))
		assert.True(t, tbl.Remove(key))
		_, ok := tbl.Lookup(key)
		assert.False(t, ok)
		assert.False(t, tbl.Remove(key))
	})

	t.Run("grant absent", func(t *testing.T) {
		key := NewKey()
		require.NoError(t, tbl.InsertSpeculative(key, readHandle, wire.LeaseKey{}))
		assert.False(t, tbl.Confirm(key, wire.NewFileID(1, 1), types.LeaseStateNone, 0))
		_, ok := tbl.Lookup(key)
		assert.False(t, ok)
	})

	t.Run("confirm after remove", func(t *testing.T) {
		key := NewKey()
		require.NoError(t, tbl.InsertSpeculative(key, readHandle, wire.LeaseKey{}))
		tbl.Remove(key)
		assert.False(t, tbl.Confirm(key, wire.NewFileID(1, 1), readHandle, 1))
		assert.Equal(t, 0, tbl.Len())
	})
}

func TestTableKeyInUse(t *testing.T) {
	tbl := NewTable(nil)
	key := NewKey()
	require.NoError(t, tbl.InsertSpeculative(key, readHandle, wire.LeaseKey{}))
	assert.ErrorIs(t, tbl.InsertSpeculative(key, readHandle, wire.LeaseKey{}), ErrKeyInUse)
}

func TestTableBreakBeforeGrant(t *testing.T) {
	tbl := NewTable(nil)
	key := NewKey()
	require.NoError(t, tbl.InsertSpeculative(key, readHandle, NewKey()))

	assert.True(t, tbl.Break(key, types.LeaseStateRead, 2))
	e, ok := tbl.Lookup(key)
	require.True(t, ok, "entry stays present")
	assert.Equal(t, StatePending, e.State)
	assert.Zero(t, e.Flags)
	assert.True(t, e.ParentKeySet())

	fid := wire.NewFileID(3, 4)
	assert.True(t, tbl.Confirm(key, fid, readHandle, 1))
	e, _ = tbl.Lookup(key)
	assert.Equal(t, StateBroken, e.State)
	assert.Equal(t, types.LeaseStateRead, e.Flags)
	assert.Equal(t, fid, e.FileID)
	assert.Equal(t, uint16(2), e.Epoch)
}

func TestTableBreakAfterGrant(t *testing.T) {
	tbl := NewTable(nil)
	key := NewKey()
	require.NoError(t, tbl.InsertSpeculative(key, readHandle, wire.LeaseKey{}))
	require.True(t, tbl.Confirm(key, wire.NewFileID(1, 1), readHandle, 3))

	assert.False(t, tbl.Break(key, types.LeaseStateNone, 2), "stale epoch")
	e, _ := tbl.Lookup(key)
	assert.Equal(t, StateGranted, e.State)

	assert.True(t, tbl.Break(key, types.LeaseStateRead, 4))
	e, _ = tbl.Lookup(key)
	assert.Equal(t, StateBroken, e.State)
	assert.Equal(t, types.LeaseStateRead, e.Flags)
	assert.Equal(t, uint16(4), e.Epoch)

	assert.False(t, tbl.Break(NewKey(), types.LeaseStateNone, 1))
}

func TestTableConcurrentBreaks(t *testing.T) {
	tbl := NewTable(&countingMetrics{})
	keys := make([]wire.LeaseKey, 32)
	for i := range keys {
		keys[i] = NewKey()
		require.NoError(t, tbl.InsertSpeculative(keys[i], readHandle, wire.LeaseKey{}))
	}

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for e := uint16(1); e <= 10; e++ {
				tbl.Break(key, types.LeaseStateRead, e)
				tbl.Lookup(key)
			}
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				tbl.Confirm(key, wire.NewFileID(uint64(i), 1), readHandle, 1)
			} else {
				tbl.Remove(key)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(keys)/2, tbl.Len())
	for i, key := range keys {
		e, ok := tbl.Lookup(key)
		if i%2 == 1 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.NotEqual(t, StatePending, e.State)
		assert.Zero(t, e.Flags&types.LeaseStateHandle, "handle caching was broken")
	}
}

func TestDefaultTableIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestDurableHandleLifecycle(t *testing.T) {
	d := NewDurableHandle(true, 30*time.Second)
	assert.Equal(t, DurableIdle, d.State())

	ctx := d.Request()
	assert.Equal(t, wire.ContextDurableV2, ctx.Name)
	req, err := wire.DecodeDurableV2Request(ctx.Data)
	require.NoError(t, err)
	assert.True(t, req.Persistent)
	assert.Equal(t, uint32(30000), req.TimeoutMillis)
	assert.Equal(t, d.CreateGUID(), req.CreateGUID)
	assert.Equal(t, DurablePending, d.State())

	fid := wire.NewFileID(5, 6)
	assert.True(t, d.Confirm(fid, &wire.DurableV2Response{Persistent: true}))
	assert.True(t, d.Granted())
	assert.True(t, d.Persistent())
	assert.Equal(t, fid, d.FileID())

	d.Free()
	assert.Equal(t, DurableFreed, d.State())
	assert.False(t, d.Persistent())
	assert.False(t, d.Confirm(fid, &wire.DurableV2Response{}), "confirm needs a pending request")
}

func TestDurableHandleNotGranted(t *testing.T) {
	d := NewDurableHandle(false, 0)
	first := d.Request()
	assert.False(t, d.Confirm(wire.NewFileID(1, 1), nil))
	assert.Equal(t, DurableFreed, d.State())

	second := d.Request()
	assert.NotEqual(t, first.Data, second.Data, "a new request uses a new CreateGuid")
}
