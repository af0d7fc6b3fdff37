package client

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// maxIOChunks caps the READ or WRITE commands chained after one CREATE.
const maxIOChunks = 4

// ReadStream reads up to length bytes at off from path, or from its named
// stream when stream is non-empty. Each compound is
// CREATE+READ×n+CLOSE; fewer bytes than requested are returned at end of
// file.
func (s *Session) ReadStream(ctx context.Context, path, stream string, off uint64, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		data, eof, err := s.readChunks(ctx, path, stream, off+uint64(len(out)), length-len(out))
		if err != nil {
			return out, err
		}
		out = append(out, data...)
		if eof {
			break
		}
	}
	logger.DebugCtx(ctx, "ReadStream",
		logger.KeyPath, path,
		logger.KeyStream, stream,
		logger.KeyOffset, off,
		logger.KeyCount, len(out))
	return out, nil
}

func (s *Session) readChunks(ctx context.Context, path, stream string, off uint64, length int) ([]byte, bool, error) {
	chunk := int(s.cfg.MaxReadSize)
	n := min((length+chunk-1)/chunk, maxIOChunks)

	res, err := s.Execute(ctx, Intent{
		Name: "read_stream",
		Path: path,
		Attrs: []attribute.KeyValue{
			telemetry.FSStream(stream),
			telemetry.FSOffset(off),
			telemetry.FSCount(uint32(length)),
		},
		Build: func(bool) (*compound.Unit, error) {
			create, err := wire.BuildCreate(&wire.CreateIntent{
				Path:        path,
				Stream:      stream,
				Access:      types.FileReadData | types.FileReadAttributes | types.Synchronize,
				Disposition: types.FileOpen,
				Options:     types.FileNonDirectoryFile,
			})
			if err != nil {
				return nil, err
			}
			u, err := compound.Start(create)
			if err != nil {
				return nil, err
			}
			remaining := length
			for i := range n {
				c, err := u.Chain(&wire.ReadRequest{
					Offset: off + uint64(i*chunk),
					Length: uint32(min(remaining, chunk)),
				}, false)
				if err != nil {
					return nil, err
				}
				c.Expect(types.StatusEndOfFile)
				remaining -= chunk
			}
			if _, err := u.Chain(&wire.CloseRequest{}, true); err != nil {
				return nil, err
			}
			return u, nil
		},
	})
	if err != nil {
		return nil, false, err
	}

	var data []byte
	for i := 1; i <= n; i++ {
		r, ok := res.Unit.At(i).Result.(*wire.ReadResponse)
		if !ok {
			return data, true, nil
		}
		data = append(data, r.Data...)
		want := min(length-(i-1)*chunk, chunk)
		if len(r.Data) < want {
			return data, true, nil
		}
	}
	return data, false, nil
}

// WriteStream writes data at off to path, or to its named stream, creating
// it when missing. Each compound is CREATE+WRITE×n+CLOSE.
func (s *Session) WriteStream(ctx context.Context, path, stream string, off uint64, data []byte) (int, error) {
	written := 0
	for {
		n, err := s.writeChunks(ctx, path, stream, off+uint64(written), data[written:])
		written += n
		if err != nil {
			return written, err
		}
		if written >= len(data) || n == 0 {
			return written, nil
		}
	}
}

func (s *Session) writeChunks(ctx context.Context, path, stream string, off uint64, data []byte) (int, error) {
	parts, count := splitChunks(data, int(s.cfg.MaxWriteSize))

	res, err := s.Execute(ctx, Intent{
		Name: "write_stream",
		Path: path,
		Attrs: []attribute.KeyValue{
			telemetry.FSStream(stream),
			telemetry.FSOffset(off),
			telemetry.FSCount(uint32(count)),
		},
		Build: func(bool) (*compound.Unit, error) {
			create, err := wire.BuildCreate(&wire.CreateIntent{
				Path:        path,
				Stream:      stream,
				Access:      types.FileWriteData | types.FileReadAttributes | types.FileWriteAttributes | types.Synchronize,
				Disposition: types.FileOpenIf,
				Options:     types.FileNonDirectoryFile,
			})
			if err != nil {
				return nil, err
			}
			u, err := compound.Start(create)
			if err != nil {
				return nil, err
			}
			pos := off
			for _, p := range parts {
				if _, err := u.Chain(&wire.WriteRequest{Offset: pos, Data: p}, false); err != nil {
					return nil, err
				}
				pos += uint64(len(p))
			}
			if _, err := u.Chain(&wire.CloseRequest{}, true); err != nil {
				return nil, err
			}
			return u, nil
		},
	})
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range parts {
		w, ok := res.Unit.At(i + 1).Result.(*wire.WriteResponse)
		if !ok {
			break
		}
		written += int(w.Count)
		if int(w.Count) < len(parts[i]) {
			break
		}
	}
	return written, nil
}

// splitChunks cuts the first maxIOChunks chunks of at most chunk bytes off
// data and returns them with their total length.
func splitChunks(data []byte, chunk int) ([][]byte, int) {
	var parts [][]byte
	total := 0
	for len(data) > 0 && len(parts) < maxIOChunks {
		p := data[:min(len(data), chunk)]
		parts = append(parts, p)
		total += len(p)
		data = data[len(p):]
	}
	return parts, total
}
