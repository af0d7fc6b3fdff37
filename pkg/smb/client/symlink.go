package client

import (
	"context"
	"fmt"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

const reparseOutputSize = 16 * 1024

// ReadSymlink returns the target of the symbolic link at path.
//
// The link is read with FSCTL_GET_REPARSE_POINT on the reparse point
// itself. The first time the server rejects the FSCTL the session switches
// for good to opening the link without the reparse option and decoding the
// STATUS_STOPPED_ON_SYMLINK error context.
func (s *Session) ReadSymlink(ctx context.Context, path string) (string, error) {
	if !s.reparseDowngraded.Load() {
		target, err := s.readSymlinkIoctl(ctx, path)
		if st, ok := commandStatus(err, types.CommandIoctl); ok &&
			(st == types.StatusInvalidDeviceRequest || st == types.StatusNotSupported) {
			if s.reparseDowngraded.CompareAndSwap(false, true) {
				telemetry.AddEvent(ctx, telemetry.EventSymlinkLatch, telemetry.SMBStatus(st.String()))
				logger.InfoCtx(ctx, "Server rejects FSCTL_GET_REPARSE_POINT, reading symlinks from error contexts",
					logger.KeyPath, path,
					logger.KeyStatus, st.String())
			}
		} else {
			return target, err
		}
	}
	return s.readSymlinkError(ctx, path)
}

func (s *Session) readSymlinkIoctl(ctx context.Context, path string) (string, error) {
	res, err := s.Execute(ctx, Intent{
		Name: "read_symlink",
		Path: path,
		Build: func(bool) (*compound.Unit, error) {
			return openChain(&wire.CreateIntent{
				Path:              path,
				Access:            types.FileReadAttributes | types.Synchronize,
				Disposition:       types.FileOpen,
				ManipulateReparse: true,
			}, &wire.IoctlRequest{
				CtlCode:           types.FsctlGetReparsePoint,
				Flags:             types.IoctlIsFsctl,
				MaxOutputResponse: reparseOutputSize,
			})
		},
	})
	if st, ok := commandStatus(err, types.CommandIoctl); ok && st == types.StatusNotAReparsePoint {
		return "", fmt.Errorf("%s: %w", path, ErrNotSymlink)
	}
	if err != nil {
		return "", err
	}
	out := res.Unit.At(1).Result.(*wire.IoctlResponse).Output
	link, err := wire.DecodeSymlinkReparse(out)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return link.Target(), nil
}

func (s *Session) readSymlinkError(ctx context.Context, path string) (string, error) {
	res, err := s.Execute(ctx, Intent{
		Name: "read_symlink",
		Path: path,
		Build: func(bool) (*compound.Unit, error) {
			create, err := wire.BuildCreate(&wire.CreateIntent{
				Path:        path,
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
			u.First().Expect(types.StatusStoppedOnSymlink)
			c, err := u.Chain(&wire.CloseRequest{}, true)
			if err != nil {
				return nil, err
			}
			c.Expect(types.StatusStoppedOnSymlink)
			return u, nil
		},
	})
	if err != nil {
		return "", err
	}
	create := res.Unit.First()
	if create.Status != types.StatusStoppedOnSymlink {
		return "", fmt.Errorf("%s: %w", path, ErrNotSymlink)
	}
	if create.ErrorBody == nil {
		return "", fmt.Errorf("%s: %w: STOPPED_ON_SYMLINK without error context", path, wire.ErrMalformed)
	}
	link, err := wire.DecodeSymlinkError(create.ErrorBody)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return link.Target(), nil
}
