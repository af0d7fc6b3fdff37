package client

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

const (
	initialInfoBuffer = 4096
	maxInfoBuffer     = 1 << 20
)

// QueryInfo returns the raw FILE_INFORMATION of class for path with a
// CREATE+QUERY_INFO+CLOSE compound. The output buffer grows while the
// server answers STATUS_BUFFER_OVERFLOW.
func (s *Session) QueryInfo(ctx context.Context, path string, class types.FileInfoClass) ([]byte, error) {
	return s.queryInfo(ctx, "query_info", path, "", class)
}

func (s *Session) queryInfo(ctx context.Context, name, path, stream string, class types.FileInfoClass) ([]byte, error) {
	size := uint32(initialInfoBuffer)
	for {
		res, err := s.Execute(ctx, Intent{
			Name: name,
			Path: path,
			Build: func(bool) (*compound.Unit, error) {
				return openChain(&wire.CreateIntent{
					Path:        path,
					Stream:      stream,
					Access:      types.FileReadAttributes | types.Synchronize,
					Disposition: types.FileOpen,
				}, &wire.QueryInfoRequest{
					InfoType:           types.InfoTypeFile,
					Class:              class,
					OutputBufferLength: size,
				})
			},
		})
		if err != nil {
			return nil, err
		}

		q := res.Unit.At(1)
		out := q.Result.(*wire.QueryInfoResponse).Output
		if q.Status != types.StatusBufferOverflow {
			return out, nil
		}
		if size >= maxInfoBuffer {
			return nil, fmt.Errorf("%s class %d: %w", path, class,
				types.NewStatusError(types.CommandQueryInfo, types.StatusBufferOverflow))
		}
		size *= 4
		logger.DebugCtx(ctx, "Query info buffer overflow",
			logger.KeyPath, path,
			logger.KeySize, size)
	}
}

// Stat returns FileAllInformation for path.
func (s *Session) Stat(ctx context.Context, path string) (*wire.FileAllInfo, error) {
	out, err := s.queryInfo(ctx, "stat", path, "", types.FileAllInformation)
	if err != nil {
		return nil, err
	}
	return wire.DecodeFileAllInfo(out)
}

// ListStreams returns the data streams of path, the unnamed one included.
func (s *Session) ListStreams(ctx context.Context, path string) ([]wire.StreamInfo, error) {
	out, err := s.queryInfo(ctx, "list_streams", path, "", types.FileStreamInformation)
	if err != nil {
		return nil, err
	}
	return wire.DecodeFileStreamInfo(out)
}

// StreamExists checks a named stream of path with CREATE+CLOSE. A missing
// stream is an expected answer, not an error.
func (s *Session) StreamExists(ctx context.Context, path, stream string) (bool, error) {
	res, err := s.Execute(ctx, Intent{
		Name: "stream_exists",
		Path: path,
		Build: func(bool) (*compound.Unit, error) {
			create, err := wire.BuildCreate(&wire.CreateIntent{
				Path:        path,
				Stream:      stream,
				Access:      types.FileReadAttributes | types.Synchronize,
				Disposition: types.FileOpen,
			})
			if err != nil {
				return nil, err
			}
			u, err := compound.Start(create)
			if err != nil {
				return nil, err
			}
			u.First().Expect(types.StatusObjectNameNotFound)
			c, err := u.Chain(&wire.CloseRequest{}, true)
			if err != nil {
				return nil, err
			}
			c.Expect(types.StatusObjectNameNotFound)
			return u, nil
		},
	})
	if err != nil {
		return false, err
	}
	return res.Unit.First().Status.IsSuccess(), nil
}

// setInfo runs CREATE+SET_INFO+CLOSE on path.
func (s *Session) setInfo(ctx context.Context, name, path string, access uint32, class types.FileInfoClass, buf []byte) error {
	_, err := s.Execute(ctx, Intent{
		Name: name,
		Path: path,
		Build: func(bool) (*compound.Unit, error) {
			return openChain(&wire.CreateIntent{
				Path:              path,
				Access:            access | types.Synchronize,
				Disposition:       types.FileOpen,
				ManipulateReparse: true,
			}, &wire.SetInfoRequest{
				InfoType: types.InfoTypeFile,
				Class:    class,
				Buffer:   buf,
			})
		},
	})
	return err
}

// Delete removes path by setting delete-pending on it. Symlinks are removed
// themselves, not their target.
func (s *Session) Delete(ctx context.Context, path string) error {
	return s.setInfo(ctx, "delete", path, types.Delete|types.FileReadAttributes,
		types.FileDispositionInformation, wire.EncodeFileDispositionInfo(true))
}

// Rename moves from to the share-relative path to.
func (s *Session) Rename(ctx context.Context, from, to string, replace bool) error {
	buf := wire.EncodeInfo(&wire.FileRenameInfo{ReplaceIfExists: replace, FileName: wire.NormalizePath(to)})
	err := s.setInfo(ctx, "rename", from, types.Delete|types.FileReadAttributes, types.FileRenameInformation, buf)
	if err == nil {
		logger.DebugCtx(ctx, "Renamed", logger.KeyPath, from, logger.KeyNewPath, to)
	}
	return err
}

// SetTimes updates the access and write times of path. A zero time leaves
// the corresponding timestamp unchanged.
func (s *Session) SetTimes(ctx context.Context, path string, atime, mtime time.Time) error {
	buf := wire.EncodeInfo(&wire.FileBasicInfo{LastAccessTime: atime, LastWriteTime: mtime})
	return s.setInfo(ctx, "set_times", path, types.FileWriteAttributes, types.FileBasicInformation, buf)
}

// SetAttributes replaces the file attributes of path.
func (s *Session) SetAttributes(ctx context.Context, path string, attrs types.FileAttributes) error {
	if attrs == 0 {
		attrs = types.FileAttributeNormal
	}
	buf := wire.EncodeInfo(&wire.FileBasicInfo{FileAttributes: attrs})
	return s.setInfo(ctx, "set_attributes", path, types.FileWriteAttributes, types.FileBasicInformation, buf)
}

// Truncate sets the end of file of path.
func (s *Session) Truncate(ctx context.Context, path string, size uint64) error {
	return s.setInfo(ctx, "truncate", path, types.FileWriteData, types.FileEndOfFileInformation,
		wire.EncodeFileEndOfFileInfo(size))
}

// openChain builds CREATE, then middle on the opened handle, then CLOSE.
func openChain(ci *wire.CreateIntent, middle wire.Request) (*compound.Unit, error) {
	create, err := wire.BuildCreate(ci)
	if err != nil {
		return nil, err
	}
	u, err := compound.Start(create)
	if err != nil {
		return nil, err
	}
	if _, err := u.Chain(middle, false); err != nil {
		return nil, err
	}
	if _, err := u.Chain(&wire.CloseRequest{}, true); err != nil {
		return nil, err
	}
	return u, nil
}
