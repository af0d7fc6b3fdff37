package handle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

type recordingCloser struct {
	mu     sync.Mutex
	closed []wire.FileID
	ctxErr []error
	err    error
}

func (c *recordingCloser) CloseHandle(ctx context.Context, fid wire.FileID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, fid)
	c.ctxErr = append(c.ctxErr, ctx.Err())
	return c.err
}

func TestGuardReleaseClosesArmedHandle(t *testing.T) {
	closer := &recordingCloser{}
	g := NewGuard(closer, 0)
	fid := wire.NewFileID(1, 2)

	g.Arm(fid, `dir\foo.txt`)
	require.True(t, g.Armed())

	assert.Equal(t, OutcomeClosed, g.Release(context.Background()))
	assert.Equal(t, []wire.FileID{fid}, closer.closed)
	assert.False(t, g.Armed())

	// Release is one-shot.
	assert.Equal(t, OutcomeNone, g.Release(context.Background()))
	assert.Len(t, closer.closed, 1)
}

func TestGuardDisarm(t *testing.T) {
	fid := wire.NewFileID(1, 2)

	tests := []struct {
		name   string
		disarm wire.FileID
		armed  bool
	}{
		{"same handle", fid, false},
		{"pending sentinel", wire.PendingFileID, false},
		{"other handle", wire.NewFileID(3, 4), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closer := &recordingCloser{}
			g := NewGuard(closer, 0)
			g.Arm(fid, "foo")
			g.Disarm(tt.disarm)
			assert.Equal(t, tt.armed, g.Armed())

			g.Release(context.Background())
			if tt.armed {
				assert.Len(t, closer.closed, 1)
			} else {
				assert.Empty(t, closer.closed)
			}
		})
	}
}

func TestGuardIgnoresUnresolvedHandles(t *testing.T) {
	g := NewGuard(&recordingCloser{}, 0)
	g.Arm(wire.PendingFileID, "foo")
	g.Arm(wire.FileID{}, "foo")
	assert.False(t, g.Armed())
}

func TestGuardDetach(t *testing.T) {
	closer := &recordingCloser{}
	g := NewGuard(closer, 0)
	fid := wire.NewFileID(7, 8)

	assert.Equal(t, wire.FileID{}, g.Detach())
	g.Arm(fid, "foo")
	assert.Equal(t, fid, g.Detach())

	assert.Equal(t, OutcomeNone, g.Release(context.Background()))
	assert.Empty(t, closer.closed)
}

func TestGuardReleaseFailureIsSwallowed(t *testing.T) {
	closer := &recordingCloser{err: errors.New("connection reset")}
	g := NewGuard(closer, 0)
	g.Arm(wire.NewFileID(1, 1), "foo")

	assert.Equal(t, OutcomeFailed, g.Release(context.Background()))
	assert.Len(t, closer.closed, 1)
}

func TestGuardReleaseIgnoresCancellation(t *testing.T) {
	closer := &recordingCloser{}
	g := NewGuard(closer, 0)
	g.Arm(wire.NewFileID(1, 1), "foo")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeClosed, g.Release(ctx))
	require.Len(t, closer.ctxErr, 1)
	assert.NoError(t, closer.ctxErr[0])
}

func TestGuardArmAfterRelease(t *testing.T) {
	closer := &recordingCloser{}
	g := NewGuard(closer, 0)
	g.Release(context.Background())

	g.Arm(wire.NewFileID(1, 1), "late")
	assert.False(t, g.Armed())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "none", OutcomeNone.String())
	assert.Equal(t, "closed", OutcomeClosed.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
}
