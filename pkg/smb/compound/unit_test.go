package compound

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

func openQueryClose(t *testing.T) (*Unit, *wire.QueryInfoRequest, *wire.CloseRequest) {
	t.Helper()
	u, err := Start(&wire.CreateRequest{Name: "file", Disposition: types.FileOpen})
	require.NoError(t, err)
	qi := &wire.QueryInfoRequest{
		InfoType:           types.InfoTypeFile,
		Class:              types.FileNetworkOpenInformation,
		OutputBufferLength: 56,
		FileID:             TargetOpened,
	}
	_, err = u.Chain(qi, false)
	require.NoError(t, err)
	cl := &wire.CloseRequest{FileID: TargetOpened}
	_, err = u.Chain(cl, true)
	require.NoError(t, err)
	return u, qi, cl
}

func TestPositions(t *testing.T) {
	t.Run("Single", func(t *testing.T) {
		u, err := Start(&wire.CreateRequest{Name: "a"})
		require.NoError(t, err)
		assert.Equal(t, PositionFirst|PositionLast, u.First().Position)
		assert.Equal(t, "single", u.First().Position.String())
	})

	t.Run("Chain", func(t *testing.T) {
		u, _, _ := openQueryClose(t)
		require.Equal(t, 3, u.Len())
		assert.Equal(t, PositionFirst, u.At(0).Position)
		assert.Equal(t, PositionMiddle, u.At(1).Position)
		assert.Equal(t, PositionLast, u.At(2).Position)
		assert.True(t, u.Sealed())
		assert.Equal(t, "CREATE+QUERY_INFO+CLOSE", u.Shape())
	})

	t.Run("TwoCommands", func(t *testing.T) {
		u, err := Start(&wire.CreateRequest{Name: "a"})
		require.NoError(t, err)
		_, err = u.Chain(&wire.CloseRequest{}, true)
		require.NoError(t, err)
		assert.Equal(t, PositionFirst, u.At(0).Position)
		assert.Equal(t, PositionLast, u.At(1).Position)
	})

	t.Run("ChainAfterLast", func(t *testing.T) {
		u, _, _ := openQueryClose(t)
		_, err := u.Chain(&wire.CloseRequest{}, true)
		assert.ErrorIs(t, err, ErrBuildFailed)
		assert.Equal(t, 3, u.Len())
	})

	t.Run("UnsealedUnitDoesNotMarshal", func(t *testing.T) {
		u, err := Start(&wire.CreateRequest{Name: "a"})
		require.NoError(t, err)
		_, err = u.Chain(&wire.QueryInfoRequest{}, false)
		require.NoError(t, err)
		_, err = u.Marshal(&seqAllocator{}, 1, 1)
		assert.ErrorIs(t, err, ErrBuildFailed)
	})
}

func TestTargetSubstitution(t *testing.T) {
	t.Run("OpenedHandleBecomesSentinel", func(t *testing.T) {
		_, qi, cl := openQueryClose(t)
		assert.True(t, qi.FileID.IsPending())
		assert.True(t, cl.FileID.IsPending())
	})

	t.Run("ResolvedTargetIsKept", func(t *testing.T) {
		fid := wire.NewFileID(5, 6)
		u, err := Start(&wire.CreateRequest{Name: "a"})
		require.NoError(t, err)
		cl := &wire.CloseRequest{FileID: fid}
		_, err = u.Chain(cl, true)
		require.NoError(t, err)
		assert.Equal(t, fid, cl.FileID)
	})

	t.Run("HeadWithoutTarget", func(t *testing.T) {
		_, err := Start(&wire.CloseRequest{})
		assert.ErrorIs(t, err, ErrBuildFailed)
	})

	t.Run("SentinelWithoutCreate", func(t *testing.T) {
		u, err := Start(&wire.CloseRequest{FileID: wire.NewFileID(1, 1)})
		require.NoError(t, err)
		_, err = u.Chain(&wire.CloseRequest{FileID: TargetOpened}, true)
		assert.ErrorIs(t, err, ErrBuildFailed)
		_, err = u.Chain(&wire.CloseRequest{FileID: wire.PendingFileID}, true)
		assert.ErrorIs(t, err, ErrBuildFailed)
	})
}

func TestMarshal(t *testing.T) {
	u, _, _ := openQueryClose(t)
	alloc := &seqAllocator{next: 10}

	buf, err := u.Marshal(alloc, 0xAA, 7)
	require.NoError(t, err)

	off := 0
	for i := 0; i < u.Len(); i++ {
		require.Zero(t, off%header.CompoundAlignment, "command %d is not 8-byte aligned", i)
		h, err := header.Parse(buf[off:])
		require.NoError(t, err)

		assert.Equal(t, u.At(i).Command(), h.Command)
		assert.Equal(t, uint64(10+i), h.MessageID)
		assert.Equal(t, uint64(0xAA), h.SessionID)
		assert.Equal(t, uint32(7), h.TreeID)
		assert.Equal(t, i > 0, h.Flags.IsRelated())
		assert.False(t, h.Flags.IsReplay())

		if i == u.Len()-1 {
			assert.Zero(t, h.NextCommand)
		} else {
			require.NotZero(t, h.NextCommand)
			off += int(h.NextCommand)
		}
	}

	// The trailing CLOSE carries the sentinel on the wire.
	last, err := wire.DecodeCloseRequest(buf[off:])
	require.NoError(t, err)
	assert.True(t, last.FileID.IsPending())
}

func TestMarshalReplayAndCharge(t *testing.T) {
	u, err := Start(&wire.CreateRequest{Name: "big"})
	require.NoError(t, err)
	_, err = u.Chain(&wire.ReadRequest{Length: 1 << 20, FileID: TargetOpened}, false)
	require.NoError(t, err)
	_, err = u.Chain(&wire.CloseRequest{FileID: TargetOpened}, true)
	require.NoError(t, err)
	u.SetReplay(true)

	alloc := &seqAllocator{next: 1}
	buf, err := u.Marshal(alloc, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, uint16(16), u.At(1).CreditCharge)
	assert.Equal(t, uint64(2), u.At(1).MessageID)
	assert.Equal(t, uint64(18), u.At(2).MessageID)

	off := 0
	for i := 0; i < u.Len(); i++ {
		h, err := header.Parse(buf[off:])
		require.NoError(t, err)
		assert.True(t, h.Flags.IsReplay())
		assert.Equal(t, u.At(i).CreditCharge, h.CreditCharge)
		off += int(h.NextCommand)
	}

	// A second marshal allocates fresh ids.
	_, err = u.Marshal(alloc, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(19), u.At(0).MessageID)
}

func TestMarshalAllocatorFailure(t *testing.T) {
	u, _, _ := openQueryClose(t)
	boom := errors.New("no credits")
	_, err := u.Marshal(&seqAllocator{err: boom}, 1, 1)
	assert.ErrorIs(t, err, boom)
}

func TestDiscardRunsOnce(t *testing.T) {
	u, _, _ := openQueryClose(t)
	calls := 0
	u.OnDiscard(func() { calls++ })
	u.Discard()
	u.Discard()
	assert.Equal(t, 1, calls)
}
