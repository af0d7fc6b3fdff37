package handle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

func createCloseUnit(t *testing.T) *compound.Unit {
	t.Helper()
	u, err := compound.Start(&wire.CreateRequest{Name: "a.txt"})
	require.NoError(t, err)
	_, err = u.Chain(&wire.CloseRequest{}, true)
	require.NoError(t, err)
	return u
}

func TestObserverArmsAndDisarms(t *testing.T) {
	fid := wire.NewFileID(3, 4)

	tests := []struct {
		name        string
		closeStatus types.Status
		wantClose   bool
	}{
		{name: "close succeeded", closeStatus: types.StatusSuccess},
		{name: "handle already gone", closeStatus: types.StatusFileClosed},
		{name: "close failed", closeStatus: types.StatusInternalError, wantClose: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closer := &recordingCloser{}
			g := NewGuard(closer, 0)
			var headers int
			obs := &Observer{
				Guard:    g,
				Path:     "a.txt",
				OnHeader: func(*compound.Command, *header.Header) { headers++ },
			}

			u := createCloseUnit(t)
			create, cl := u.At(0), u.At(1)

			obs.HeaderParsed(create, &header.Header{Command: types.CommandCreate})
			create.Result = &wire.CreateResponse{FileID: fid}
			obs.Completed(create)
			require.True(t, g.Armed())

			obs.HeaderParsed(cl, &header.Header{Command: types.CommandClose, Status: tt.closeStatus})
			obs.Completed(cl)
			assert.Equal(t, 2, headers)
			assert.Equal(t, tt.wantClose, g.Armed())

			g.Release(context.Background())
			if tt.wantClose {
				assert.Equal(t, []wire.FileID{fid}, closer.closed)
			} else {
				assert.Empty(t, closer.closed)
			}
		})
	}
}

func TestObserverIgnoresFailedCreate(t *testing.T) {
	g := NewGuard(&recordingCloser{}, 0)
	obs := &Observer{Guard: g}

	u := createCloseUnit(t)
	obs.HeaderParsed(u.At(0), &header.Header{Command: types.CommandCreate, Status: types.StatusObjectNameNotFound})
	obs.Completed(u.At(0))

	assert.False(t, g.Armed())
}
